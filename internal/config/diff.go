package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AvatarChanged    bool
	NewAutoAnimate   bool
	NewReducedMotion bool

	// RestartRequired lists sections that changed but are not applied live.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AvatarChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Avatar.AutoAnimate != new.Avatar.AutoAnimate || old.Avatar.ReducedMotion != new.Avatar.ReducedMotion {
		d.AvatarChanged = true
		d.NewAutoAnimate = new.Avatar.AutoAnimate
		d.NewReducedMotion = new.Avatar.ReducedMotion
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.QA.CorpusFile != new.QA.CorpusFile || old.QA.Threshold != new.QA.Threshold ||
		old.QA.FallbackAnswer != new.QA.FallbackAnswer || old.QA.CorrectionEnabled() != new.QA.CorrectionEnabled() {
		d.RestartRequired = append(d.RestartRequired, "qa")
	}
	if old.Avatar.AssetFile != new.Avatar.AssetFile || old.Avatar.FrameRate != new.Avatar.FrameRate {
		d.RestartRequired = append(d.RestartRequired, "avatar")
	}

	return d
}

// sameProviders compares the identifying fields of each entry. Options maps
// are not compared.
func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.STT, b.STT) && sameEntry(a.TTS, b.TTS) &&
		sameEntries(a.TTSFallback, b.TTSFallback) && sameEntries(a.STTFallback, b.STTFallback)
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
