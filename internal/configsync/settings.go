// Package configsync implements the Config Sync Service (spec §4.8): a
// specialization of the Sync Engine dedicated to system_configs and
// ai_provider_configs, responsible for recognizing which environment-
// provided settings are mirrored, encrypting sensitive ones before they
// leave the local process, and seeding a fresh replica's local store from
// its own environment on first start.
package configsync

import "encoding/json"

// Settings is the recognized, fixed set of environment-provided options
// mirrored between peers (spec §4.8). Fields outside this set are never
// synced, regardless of what a deployment's environment happens to carry.
type Settings struct {
	DatabaseURL         string `json:"database_url,omitempty"`
	DefaultAdminUser    string `json:"default_admin_user,omitempty"`
	DefaultAdminPass    string `json:"default_admin_password,omitempty"`
	R2AccessKeyID       string `json:"r2_access_key_id,omitempty"`
	R2SecretAccessKey   string `json:"r2_secret_access_key,omitempty"`
	R2Endpoint          string `json:"r2_endpoint,omitempty"`
	R2Bucket            string `json:"r2_bucket,omitempty"`
	JWTSecret           string `json:"jwt_secret,omitempty"`
	AIProviderKeys      map[string]string `json:"ai_provider_keys,omitempty"`
	AIProviderBaseURLs  map[string]string `json:"ai_provider_base_urls,omitempty"`
	CaptchaSiteKey      string `json:"captcha_site_key,omitempty"`
	CaptchaSecretKey    string `json:"captcha_secret_key,omitempty"`
	UploadMaxSizeMB     int    `json:"upload_max_size_mb,omitempty"`
	LoginCaptchaEnabled bool   `json:"login_captcha_enabled,omitempty"`
}

// sensitiveFields lists the Settings fields the deployment environment
// would never want logged or stored in the clear (spec §4.1 rule 7, §4.8).
// Encryption here is applied to the whole record payload rather than
// per-field (see codec.go); no function in this package reads this map.
var sensitiveFields = map[string]bool{
	"default_admin_password": true,
	"r2_secret_access_key":   true,
	"jwt_secret":             true,
	"ai_provider_keys":       true,
	"captcha_secret_key":     true,
}

// FromEnv builds a Settings from recognized environment variables, using
// getenv so callers (and tests) control the source instead of reaching for
// os.Getenv directly.
func FromEnv(getenv func(string) string) Settings {
	s := Settings{
		DatabaseURL:       getenv("DATABASE_URL"),
		DefaultAdminUser:  getenv("DEFAULT_ADMIN_USERNAME"),
		DefaultAdminPass:  getenv("DEFAULT_ADMIN_PASSWORD"),
		R2AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		R2Endpoint:        getenv("R2_ENDPOINT"),
		R2Bucket:          getenv("R2_BUCKET_NAME"),
		JWTSecret:         getenv("JWT_SECRET"),
		CaptchaSiteKey:    getenv("CAPTCHA_SITE_KEY"),
		CaptchaSecretKey:  getenv("CAPTCHA_SECRET_KEY"),
	}

	if v := getenv("OPENAI_API_KEY"); v != "" {
		s.addProviderKey("openai", v)
	}

	if v := getenv("OPENAI_BASE_URL"); v != "" {
		s.addProviderBaseURL("openai", v)
	}

	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		s.addProviderKey("anthropic", v)
	}

	if v := getenv("ANTHROPIC_BASE_URL"); v != "" {
		s.addProviderBaseURL("anthropic", v)
	}

	if v := getenv("LOGIN_CAPTCHA_ENABLED"); v == "true" || v == "1" {
		s.LoginCaptchaEnabled = true
	}

	return s
}

func (s *Settings) addProviderKey(provider, key string) {
	if s.AIProviderKeys == nil {
		s.AIProviderKeys = make(map[string]string)
	}

	s.AIProviderKeys[provider] = key
}

func (s *Settings) addProviderBaseURL(provider, url string) {
	if s.AIProviderBaseURLs == nil {
		s.AIProviderBaseURLs = make(map[string]string)
	}

	s.AIProviderBaseURLs[provider] = url
}

// IsZero reports whether no recognized setting was populated.
func (s Settings) IsZero() bool {
	return s.DatabaseURL == "" && s.DefaultAdminUser == "" && s.DefaultAdminPass == "" &&
		s.R2AccessKeyID == "" && s.R2SecretAccessKey == "" && s.R2Endpoint == "" && s.R2Bucket == "" &&
		s.JWTSecret == "" && s.CaptchaSiteKey == "" && s.CaptchaSecretKey == "" &&
		s.UploadMaxSizeMB == 0 && !s.LoginCaptchaEnabled &&
		len(s.AIProviderKeys) == 0 && len(s.AIProviderBaseURLs) == 0
}

// Marshal encodes s as the JSON payload carried by a system_configs or
// ai_provider_configs record.
func (s Settings) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a system_configs/ai_provider_configs record payload.
func Unmarshal(payload []byte) (Settings, error) {
	var s Settings

	if len(payload) == 0 {
		return s, nil
	}

	err := json.Unmarshal(payload, &s)

	return s, err
}
