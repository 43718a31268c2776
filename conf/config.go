package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	configValidator = newConfigValidator()
	numberRegex     = regexp.MustCompile(`^\d+$`)
)

type Config struct {
	AppEnv       string        `json:"appEnv" validate:"omitempty,oneof=dev prod test"`
	HTTPServConf HttpServConf  `json:"httpServer" validate:"required"`
	DBConf       *DbConf       `json:"dataBase"`
	TrackerConf  TrackerConf   `json:"tracker" validate:"required"`
	RetryConf    RetryConf     `json:"retry" validate:"required"`
	AnalysisConf AnalysisConf  `json:"analysis" validate:"required"`
	ScheduleConf *ScheduleConf `json:"schedule"`
}

type HttpServConf struct {
	Host    string `json:"host" validate:"required"`
	Port    string `json:"port" validate:"required,is-number"`
	BaseURL string `json:"baseURL"`
}

// GetAddress возвращает строку host:port для запуска HTTP-сервера.
func (s *HttpServConf) GetAddress() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type DbConf struct {
	Host     string `json:"host" validate:"required"`
	Port     string `json:"port" validate:"required,is-number"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

// TrackerConf описывает подключение к API трекера задач.
// Пустые учётные данные допустимы для трекеров с анонимным чтением.
type TrackerConf struct {
	BaseURL         string   `json:"baseURL" validate:"required,url"`
	Username        string   `json:"username"`
	Token           string   `json:"token"`
	APIVersion      string   `json:"apiVersion" validate:"required,oneof=2 3"`
	PageSize        int      `json:"pageSize" validate:"required,min=1,max=1000"`
	ExpandChangelog bool     `json:"expandChangelog"`
	HTTPTimeout     Duration `json:"httpTimeout" validate:"required"`
}

// RetryConf задаёт параметры экспоненциального backoff для запросов к трекеру.
type RetryConf struct {
	MaxRetries          uint64   `json:"maxRetries" validate:"max=20"`
	InitialInterval     Duration `json:"initialInterval" validate:"required"`
	MaxInterval         Duration `json:"maxInterval" validate:"required"`
	Multiplier          float64  `json:"multiplier" validate:"gte=1"`
	RandomizationFactor float64  `json:"randomizationFactor" validate:"gte=0,lte=1"`
}

// AnalysisConf задаёт параметры конвейера и агрегации.
type AnalysisConf struct {
	Workers      int    `json:"workers" validate:"required,min=1,max=64"`
	TopUsers     int    `json:"topUsers" validate:"required,min=1"`
	MaxBuckets   int    `json:"maxBuckets" validate:"required,min=1"`
	MaxTrendDays int    `json:"maxTrendDays" validate:"required,min=1"`
	Timezone     string `json:"timezone"`
	ExtraJQL     string `json:"extraJQL"`
}

// ScheduleConf включает периодический запуск анализа по расписанию cron.
type ScheduleConf struct {
	Cron     string   `json:"cron" validate:"required"`
	Projects []string `json:"projects" validate:"required,min=1,dive,required"`
	Timeout  Duration `json:"timeout" validate:"required"`
}

// Location возвращает часовой пояс для дневной агрегации, UTC по умолчанию.
func (a *AnalysisConf) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", a.Timezone, err)
	}
	return loc, nil
}

// Duration позволяет записывать длительности в JSON строками вида "1.5s".
type Duration struct {
	time.Duration
}

// UnmarshalJSON принимает строку в формате time.ParseDuration либо число наносекунд.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(v)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalJSON сериализует длительность строкой.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MustLoad читает файл конфигурации, применяет значения из окружения и валидирует структуру.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load делает то же, что MustLoad, но возвращает ошибку вместо паники.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults заполняет необязательные поля значениями по умолчанию.
func applyDefaults(cfg *Config) {
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}
	if cfg.TrackerConf.APIVersion == "" {
		cfg.TrackerConf.APIVersion = "2"
	}
	if cfg.TrackerConf.PageSize == 0 {
		cfg.TrackerConf.PageSize = 100
	}
	if cfg.TrackerConf.HTTPTimeout.Duration == 0 {
		cfg.TrackerConf.HTTPTimeout.Duration = 30 * time.Second
	}
	if cfg.RetryConf.InitialInterval.Duration == 0 {
		cfg.RetryConf.InitialInterval.Duration = 500 * time.Millisecond
	}
	if cfg.RetryConf.MaxInterval.Duration == 0 {
		cfg.RetryConf.MaxInterval.Duration = 30 * time.Second
	}
	if cfg.RetryConf.Multiplier == 0 {
		cfg.RetryConf.Multiplier = 2
	}
	if cfg.AnalysisConf.Workers == 0 {
		cfg.AnalysisConf.Workers = 8
	}
	if cfg.AnalysisConf.TopUsers == 0 {
		cfg.AnalysisConf.TopUsers = 30
	}
	if cfg.AnalysisConf.MaxBuckets == 0 {
		cfg.AnalysisConf.MaxBuckets = 30
	}
	if cfg.AnalysisConf.MaxTrendDays == 0 {
		cfg.AnalysisConf.MaxTrendDays = 20 * 365
	}
	if cfg.ScheduleConf != nil && cfg.ScheduleConf.Timeout.Duration == 0 {
		cfg.ScheduleConf.Timeout.Duration = 30 * time.Minute
	}
}

// applyEnvOverrides подменяет поля конфигурации значениями из переменных окружения.
func applyEnvOverrides(cfg *Config) {
	override := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			*target = val
		}
	}

	override("APP_ENV", &cfg.AppEnv)

	override("HTTP_HOST", &cfg.HTTPServConf.Host)
	override("HTTP_PORT", &cfg.HTTPServConf.Port)
	override("HTTP_BASE_URL", &cfg.HTTPServConf.BaseURL)

	override("TRACKER_BASE_URL", &cfg.TrackerConf.BaseURL)
	override("TRACKER_USERNAME", &cfg.TrackerConf.Username)
	override("TRACKER_TOKEN", &cfg.TrackerConf.Token)
	override("TRACKER_API_VERSION", &cfg.TrackerConf.APIVersion)
	if val := os.Getenv("TRACKER_PAGE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.TrackerConf.PageSize = n
		}
	}

	if val := os.Getenv("ANALYSIS_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.AnalysisConf.Workers = n
		}
	}
	override("ANALYSIS_TIMEZONE", &cfg.AnalysisConf.Timezone)

	// Архив включается только если задан хост БД (в файле или окружении).
	if host := os.Getenv("DB_HOST"); host != "" && cfg.DBConf == nil {
		cfg.DBConf = &DbConf{}
	}
	if cfg.DBConf != nil {
		override("DB_HOST", &cfg.DBConf.Host)
		override("DB_PORT", &cfg.DBConf.Port)
		override("DB_USER", &cfg.DBConf.User)
		override("DB_PASSWORD", &cfg.DBConf.Password)
		override("DB_NAME", &cfg.DBConf.Name)
	}

	if val := os.Getenv("SCHEDULE_PROJECTS"); val != "" && cfg.ScheduleConf != nil {
		var projects []string
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				projects = append(projects, p)
			}
		}
		cfg.ScheduleConf.Projects = projects
	}
}

// newConfigValidator настраивает валидатор и регистрирует пользовательские проверки.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("is-number", func(fl validator.FieldLevel) bool {
		return numberRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic("failed to register is-number validation: " + err.Error())
	}
	return v
}
