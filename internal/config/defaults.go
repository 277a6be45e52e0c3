package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			LogFormat:             "text",
			MaxConcurrentMessages: 5,
			MessageTimeoutSeconds: 120,
			RatePerMinute:         0,
			RateBurst:             5,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3978,
			MessagesPath: "/api/messages",
			AskPath:      "/api/ask",
			MetricsPath:  "/metrics",
		},
		BotFramework: BotFrameworkConfig{
			Enabled:            true,
			TokenURL:           "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token",
			OpenIDMetadataURL:  "https://login.botframework.com/v1/.well-known/openidconfiguration",
			MaxAttachmentBytes: 20 << 20,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			Webhook: WebhookConfig{
				Enabled:             false,
				ReplyTimeoutSeconds: 60,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Gateway: GatewayConfig{
			Completion: CompletionConfig{
				Provider:   CompletionAzure,
				APIVersion: "2024-06-01",
			},
			Vision: VisionConfig{},
			Speech: SpeechConfig{
				Backend:  SpeechAzure,
				Language: "en-US",
			},
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Dispatch: DispatchConfig{
			MaxTokens:   200,
			Temperature: 0.7,
		},
		Transcode: TranscodeConfig{
			Backend:    TranscodeNative,
			FFmpegPath: "ffmpeg",
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
		},
		History: HistoryConfig{
			Enabled:       false,
			DBPath:        "~/.yogabot/history.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}
