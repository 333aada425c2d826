package config

const (
	defaultDataDir       = "~/.local/share/faceomatic"
	defaultLogDir        = "~/.local/share/faceomatic/logs"
	defaultAPIBind       = "127.0.0.1:7488"
	defaultListingURL    = "https://archive.org/details/tv?weekshows&output=json"
	defaultDownloadURL   = "http://archive.org/download"
	defaultDetailsURL    = "https://archive.org/details"
	defaultClassifierURL = "https://www.matroid.com/api/0.1"
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultSchedule      = "* * * * *"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"

	defaultLogRetentionDays       = 30
	defaultRecencyHours           = 24
	defaultArchiveRequestTimeout  = 30
	defaultPollInterval           = 10
	defaultMaxConcurrent          = 4
	defaultRequestsPerSecond      = 2.0
	defaultConfidenceThreshold    = 90.0
	defaultGapTolerance           = 3
	defaultPollMaxErrors          = 5
	defaultClassifierTimeout      = 120
	defaultSegmentSeconds         = 1200
	defaultDownloadRetryDelay     = 600
	defaultMaxParallelJobs        = 2
	defaultNotifyRequestTimeout   = 10
	defaultMinFreeDiskGiB         = 5
	defaultNotificationUserAgent  = "faceomatic/1.0"
	defaultClassifierTokenSkewSec = 60
)

var defaultNetworks = []string{"CNNW", "FOXNEWSW", "MSNBCW", "BBCNEWS"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Archive: Archive{
			ListingURL:      defaultListingURL,
			DownloadBaseURL: defaultDownloadURL,
			DetailsBaseURL:  defaultDetailsURL,
			Networks:        append([]string(nil), defaultNetworks...),
			RecencyHours:    defaultRecencyHours,
			RequestTimeout:  defaultArchiveRequestTimeout,
		},
		Classifier: Classifier{
			BaseURL:             defaultClassifierURL,
			PollInterval:        defaultPollInterval,
			MaxConcurrent:       defaultMaxConcurrent,
			RequestsPerSecond:   defaultRequestsPerSecond,
			ConfidenceThreshold: defaultConfidenceThreshold,
			GapTolerance:        defaultGapTolerance,
			PollMaxErrors:       defaultPollMaxErrors,
			RequestTimeout:      defaultClassifierTimeout,
			TokenSkewSeconds:    defaultClassifierTokenSkewSec,
		},
		Split: Split{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			SegmentSeconds: defaultSegmentSeconds,
		},
		Workflow: Workflow{
			DiscoverySchedule:  defaultSchedule,
			DispatchSchedule:   defaultSchedule,
			DownloadRetryDelay: defaultDownloadRetryDelay,
			MaxParallelJobs:    defaultMaxParallelJobs,
			RecoverInterrupted: true,
			MinFreeDiskGiB:     defaultMinFreeDiskGiB,
		},
		Notifications: Notifications{
			Enabled:        true,
			RequestTimeout: defaultNotifyRequestTimeout,
			UserAgent:      defaultNotificationUserAgent,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
