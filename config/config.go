package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// Datenbank: "postgres" für den Betrieb, "sqlite" für lokale Entwicklung.
	DBDriver     string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost       string `envconfig:"DB_HOST"`
	DBPort       int    `envconfig:"DB_PORT" default:"5432"`
	DBUser       string `envconfig:"DB_USER"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	DBName       string `envconfig:"DB_NAME"`
	DBSQLitePath string `envconfig:"DB_SQLITE_PATH" default:"refcheck.db"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// Verifikation
	VerifyTimeout   time.Duration `envconfig:"VERIFY_TIMEOUT" default:"20s"`
	SourceTimeout   time.Duration `envconfig:"SOURCE_TIMEOUT" default:"8s"`
	SourceRateLimit float64       `envconfig:"SOURCE_RATE_LIMIT" default:"5"`
	SourceCacheTTL  time.Duration `envconfig:"SOURCE_CACHE_TTL" default:"168h"`
	EnabledSources  string        `envconfig:"ENABLED_SOURCES" default:"doi_exists,retraction,peer_review,citation_count,pubmed,arxiv,url_reachable"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"refcheck/1.0 (+https://github.com/refcheck)"`

	CrossrefBaseURL  string `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	CrossrefMailto   string `envconfig:"CROSSREF_MAILTO"`
	DOIBaseURL       string `envconfig:"DOI_BASE_URL" default:"https://doi.org"`
	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`
	PubMedBaseURL    string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey     string `envconfig:"PUBMED_API_KEY"`
	PubMedTool       string `envconfig:"PUBMED_TOOL" default:"refcheck"`
	ArxivBaseURL     string `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api"`

	// Unpaywall-API für alternative Links bei toten URLs
	UnpaywallBaseURL string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail   string `envconfig:"UNPAYWALL_EMAIL"`

	// Konsens-Gewichte
	ConsensusBaseline          int `envconfig:"CONSENSUS_BASELINE" default:"50"`
	ConsensusSuccessWeight     int `envconfig:"CONSENSUS_SUCCESS_WEIGHT" default:"10"`
	ConsensusNotFoundPenalty   int `envconfig:"CONSENSUS_NOT_FOUND_PENALTY" default:"30"`
	ConsensusRetractionPenalty int `envconfig:"CONSENSUS_RETRACTION_PENALTY" default:"100"`
	ConsensusRetractionCeiling int `envconfig:"CONSENSUS_RETRACTION_CEILING" default:"15"`

	IEEEMaxAuthors int `envconfig:"IEEE_MAX_AUTHORS" default:"6"`

	// S3 ist optional; ohne Bucket werden PDFs nicht abgelegt.
	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	ReverifySchedule  string        `envconfig:"REVERIFY_SCHEDULE" default:"0 3 * * *"`
	ReverifyAfter     time.Duration `envconfig:"REVERIFY_AFTER" default:"720h"`
	ReverifyBatchSize int           `envconfig:"REVERIFY_BATCH_SIZE" default:"50"`

	PDFMaxBytes int64 `envconfig:"PDF_MAX_BYTES" default:"52428800"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// S3Enabled meldet, ob alle Angaben für den Objektspeicher vorhanden sind.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3URL != "" && c.S3Key != "" && c.S3Secret != ""
}

// SourceNames liefert die aktivierten Quellen in Konfigurationsreihenfolge.
func (c *Config) SourceNames() []string {
	var names []string
	for _, n := range strings.Split(c.EnabledSources, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Validate prüft treiberspezifische Pflichtfelder und Wertebereiche.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST, DB_USER and DB_NAME are required for postgres")
		}
	case "sqlite":
		if c.DBSQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.VerifyTimeout <= 0 || c.SourceTimeout <= 0 {
		return fmt.Errorf("VERIFY_TIMEOUT and SOURCE_TIMEOUT must be positive")
	}
	if c.IEEEMaxAuthors < 1 {
		return fmt.Errorf("IEEE_MAX_AUTHORS must be at least 1")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Defaults liefert die Konfiguration aus der Umgebung ohne .env-Datei und ohne Validierung.
// Ungesetzte Variablen erhalten ihre Default-Werte.
func Defaults() *Config {
	var c Config
	_ = envconfig.Process("", &c)
	return &c
}
