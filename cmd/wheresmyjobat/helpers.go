package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/wheresmyjobat/wheresmyjobat/internal/config"
	"github.com/wheresmyjobat/wheresmyjobat/internal/gmail"
	"github.com/wheresmyjobat/wheresmyjobat/internal/imap"
	"github.com/wheresmyjobat/wheresmyjobat/internal/llm"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
	"github.com/wheresmyjobat/wheresmyjobat/internal/storage"
)

// createMailbox builds the configured mailbox adapter. Gmail is the default;
// set mailbox.provider to "imap" for plain IMAP accounts.
func createMailbox() (service.MailboxService, error) {
	provider := viper.GetString("mailbox.provider")
	keywords := viper.GetStringSlice("mailbox.keywords")
	lookback := viper.GetInt("mailbox.lookback_days")
	maxBody := viper.GetInt("mailbox.max_body_chars")

	switch provider {
	case "gmail", "":
		clientID := viper.GetString("gmail.client_id")
		if clientID == "" {
			clientID = os.Getenv("GOOGLE_CLIENT_ID")
		}
		clientSecret := viper.GetString("gmail.client_secret")
		if clientSecret == "" {
			clientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
		}
		redirectURL := viper.GetString("gmail.redirect_url")
		if redirectURL == "" {
			redirectURL = fmt.Sprintf("http://%s/auth/callback", serverAddr())
		}

		return gmail.New(gmail.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Keywords:     keywords,
			LookbackDays: lookback,
			MaxBodyChars: maxBody,
		})

	case "imap":
		password := viper.GetString("imap.password")
		if password == "" {
			password = os.Getenv("IMAP_PASSWORD")
		}

		return imap.New(imap.Config{
			Host:         viper.GetString("imap.host"),
			Username:     viper.GetString("imap.username"),
			Password:     password,
			Folder:       viper.GetString("imap.folder"),
			Keywords:     keywords,
			LookbackDays: lookback,
			MaxBodyChars: maxBody,
		})

	default:
		return nil, fmt.Errorf("unknown mailbox provider: %s", provider)
	}
}

// createClassifier builds the LLM classifier from configuration. A missing
// API key yields an unavailable classifier rather than an error.
func createClassifier() (service.Classifier, error) {
	provider := viper.GetString("llm.provider")
	if provider == "" {
		provider = "gemini"
	}

	var apiKey string
	switch provider {
	case "gemini":
		apiKey = viper.GetString("llm.gemini_api_key")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
	case "openai":
		apiKey = viper.GetString("llm.openai_api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	return llm.NewClassifier(llm.Config{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       viper.GetString("llm.model"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	})
}

// openStorage opens the SQLite database at the configured path.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	return storage.NewSQLiteStorage(config.ExpandPath(dbPath))
}

func serverAddr() string {
	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = "127.0.0.1:5000"
	}
	return addr
}
