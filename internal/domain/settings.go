package domain

import "time"

// DefaultDeepSeekBaseURL is used when settings leave the base URL blank.
const DefaultDeepSeekBaseURL = "https://api.deepseek.com"

// BackupVersion is the only backup file format version produced and accepted.
const BackupVersion = 1

// AppSettings holds the per-store preferences and extractor credentials.
type AppSettings struct {
	GeminiAPIKey    string `json:"geminiApiKey"`
	DeepSeekAPIKey  string `json:"deepseekApiKey"`
	DeepSeekBaseURL string `json:"deepseekBaseUrl"`
	CashierName     string `json:"cashierName"`
}

// DefaultAppSettings returns the settings used before anything is saved.
func DefaultAppSettings() AppSettings {
	return AppSettings{DeepSeekBaseURL: DefaultDeepSeekBaseURL}
}

// Backup is the export/import file layout.
type Backup struct {
	Version   int         `json:"version"`
	Timestamp int64       `json:"timestamp"`
	Products  []Product   `json:"products"`
	Settings  AppSettings `json:"settings"`
}

// QuotationRecord captures one completed quotation.
type QuotationRecord struct {
	ID           string
	Tier         PriceTier
	CashierLabel string
	Lines        []QuotationLine
	Total        float64
	Text         string
	CreatedAt    time.Time
}

// QuotationLine is a priced order line.
type QuotationLine struct {
	Item      OrderItem
	Found     bool
	UnitPrice UnitPrice
	Subtotal  float64
}
