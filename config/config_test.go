package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/cv-ai-agent/config"
)

var managedEnv = []string{
	"APP_NAME", "APP_ENV", "FLASK_ENV", "HOST", "PORT", "DEBUG", "LOG_LEVEL",
	"SECRET_KEY", "DATABASE_URL", "TEST_DATABASE_URL", "MAX_CONTENT_LENGTH",
	"JSON_SORT_KEYS", "DEPLOY_TIMESTAMP", "METRICS_ENABLED", "LIMITER_ENABLED",
	"LIMITER_RPS", "LIMITER_BURST", "READINESS_CHECK_DATABASE", "READINESS_CACHE_TTL",
	"GUNICORN_BIND", "SERVER_BIND", "GUNICORN_WORKERS", "GUNICORN_TIMEOUT",
	"GUNICORN_KEEPALIVE", "GUNICORN_PROC_NAME", "SERVER_PROC_NAME",
}

func clearEnv() {
	for _, key := range managedEnv {
		os.Unsetenv(key)
	}
}

func setEnv(pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		Expect(os.Setenv(pairs[i], pairs[i+1])).To(Succeed())
	}
}

var _ = Describe("Config", func() {
	var tempDir string

	BeforeEach(func() {
		clearEnv()
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
		clearEnv()
	})

	Describe("Load", func() {
		Context("with required variables missing", func() {
			It("should fail without SECRET_KEY", func() {
				setEnv("DATABASE_URL", "postgres://localhost/cv")

				cfg, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, config.ErrMissingEnv)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("SECRET_KEY"))
				Expect(cfg).To(BeNil())
			})

			It("should fail without DATABASE_URL outside the testing profile", func() {
				setEnv("SECRET_KEY", "s3cret")

				cfg, err := config.Load(tempDir)
				Expect(errors.Is(err, config.ErrMissingEnv)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("DATABASE_URL"))
				Expect(cfg).To(BeNil())
			})

			It("should treat an empty value as missing", func() {
				setEnv("SECRET_KEY", "", "DATABASE_URL", "postgres://localhost/cv")

				_, err := config.Load(tempDir)
				Expect(errors.Is(err, config.ErrMissingEnv)).To(BeTrue())
			})
		})

		Context("with required variables present", func() {
			BeforeEach(func() {
				setEnv("SECRET_KEY", "s3cret", "DATABASE_URL", "postgres://localhost/cv")
			})

			It("should apply defaults", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AppName).To(Equal("CV_AI_AGENT"))
				Expect(cfg.Env).To(Equal(config.EnvDevelopment))
				Expect(cfg.Host).To(Equal("0.0.0.0"))
				Expect(cfg.Port).To(Equal(8000))
				Expect(cfg.MaxContentLength).To(Equal(int64(16 * 1024 * 1024)))
				Expect(cfg.DeployTimestamp).To(Equal("local-dev"))
				Expect(cfg.JSONSortKeys).To(BeFalse())
				Expect(cfg.Metrics.Enabled).To(BeTrue())
				Expect(cfg.Limiter.Enabled).To(BeFalse())
				Expect(cfg.Addr()).To(Equal("0.0.0.0:8000"))
			})

			It("should apply process manager defaults", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Workers).To(Equal(2*runtime.NumCPU() + 1))
				Expect(cfg.Server.Threads).To(Equal(1))
				Expect(config.MustDuration(cfg.Server.Timeout)).To(Equal(30 * time.Second))
				Expect(config.MustDuration(cfg.Server.GracefulTimeout)).To(Equal(30 * time.Second))
				Expect(config.MustDuration(cfg.Server.KeepAlive)).To(Equal(2 * time.Second))
				Expect(cfg.Server.AccessLog).To(Equal("-"))
				Expect(cfg.Server.ErrorLog).To(Equal("-"))
				Expect(cfg.Server.ProcName).To(Equal("cv_ai_agent"))
			})

			It("should force debug settings in development", func() {
				setEnv("LOG_LEVEL", "ERROR", "DEBUG", "false")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Debug).To(BeTrue())
				Expect(cfg.LogLevel).To(Equal(config.LogLevelDebug))
				Expect(cfg.IsProduction()).To(BeFalse())
			})

			It("should disable debug in production and keep the log level", func() {
				setEnv("APP_ENV", "production", "DEBUG", "true", "LOG_LEVEL", "WARNING")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.IsProduction()).To(BeTrue())
				Expect(cfg.Debug).To(BeFalse())
				Expect(cfg.LogLevel).To(Equal(config.LogLevelWarning))
			})

			It("should fall back to FLASK_ENV", func() {
				setEnv("FLASK_ENV", "production")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Env).To(Equal(config.EnvProduction))
			})

			It("should prefer APP_ENV over FLASK_ENV", func() {
				setEnv("APP_ENV", "testing", "FLASK_ENV", "production")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Env).To(Equal(config.EnvTesting))
			})

			It("should normalize environment aliases", func() {
				setEnv("APP_ENV", "PROD")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Env).To(Equal(config.EnvProduction))
			})

			It("should reject unknown environments", func() {
				setEnv("APP_ENV", "staging")

				cfg, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})

			It("should parse truthy flags", func() {
				setEnv("JSON_SORT_KEYS", "yes", "METRICS_ENABLED", "0")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.JSONSortKeys).To(BeTrue())
				Expect(cfg.Metrics.Enabled).To(BeFalse())
			})

			It("should honour gunicorn variables", func() {
				setEnv(
					"GUNICORN_BIND", "127.0.0.1:8080",
					"GUNICORN_WORKERS", "4",
					"GUNICORN_TIMEOUT", "45",
					"GUNICORN_PROC_NAME", "cv_worker",
				)

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Addr()).To(Equal("127.0.0.1:8080"))
				Expect(cfg.Server.Workers).To(Equal(4))
				Expect(config.MustDuration(cfg.Server.Timeout)).To(Equal(45 * time.Second))
				Expect(cfg.Server.ProcName).To(Equal("cv_worker"))
			})

			It("should prefer SERVER_ spellings over GUNICORN_ ones", func() {
				setEnv("GUNICORN_PROC_NAME", "from_gunicorn", "SERVER_PROC_NAME", "from_server")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.ProcName).To(Equal("from_server"))
			})

			It("should reject an out of range port", func() {
				setEnv("PORT", "70000")

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})

			It("should reject an invalid keepalive", func() {
				setEnv("GUNICORN_KEEPALIVE", "forever")

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})

			It("should reject an invalid bind address", func() {
				setEnv("GUNICORN_BIND", "not-an-address")

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})

			It("should accept a zero readiness cache TTL", func() {
				setEnv("READINESS_CACHE_TTL", "0")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Readiness.CacheTTL).To(Equal("0"))
			})

			It("should reject a negative readiness cache TTL", func() {
				setEnv("READINESS_CACHE_TTL", "-5s")

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("in the testing profile", func() {
			BeforeEach(func() {
				setEnv("APP_ENV", "testing", "SECRET_KEY", "s3cret")
			})

			It("should not require DATABASE_URL", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.IsTesting()).To(BeTrue())
				Expect(cfg.Testing).To(BeTrue())
				Expect(cfg.Debug).To(BeTrue())
				Expect(cfg.LogLevel).To(Equal(config.LogLevelDebug))
				Expect(cfg.DatabaseURL).To(Equal("sqlite:///:memory:"))
			})

			It("should use TEST_DATABASE_URL when set", func() {
				setEnv("DATABASE_URL", "postgres://prod/cv", "TEST_DATABASE_URL", "postgres://localhost/cv_test")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.DatabaseURL).To(Equal("postgres://localhost/cv_test"))
			})
		})

		Context("with a config file", func() {
			BeforeEach(func() {
				configContent := `
app_name: "CV_FROM_FILE"
app_env: "production"
port: 9000
log_level: "error"
server:
  proc_name: "from_file"
  keepalive: "5s"
`
				configPath := filepath.Join(tempDir, "config.yaml")
				Expect(os.WriteFile(configPath, []byte(configContent), 0644)).To(Succeed())
				setEnv("SECRET_KEY", "s3cret", "DATABASE_URL", "postgres://localhost/cv")
			})

			It("should load values from the file", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AppName).To(Equal("CV_FROM_FILE"))
				Expect(cfg.Env).To(Equal(config.EnvProduction))
				Expect(cfg.Port).To(Equal(9000))
				Expect(cfg.LogLevel).To(Equal(config.LogLevelError))
				Expect(cfg.Server.ProcName).To(Equal("from_file"))
				Expect(config.MustDuration(cfg.Server.KeepAlive)).To(Equal(5 * time.Second))
			})

			It("should let environment variables override the file", func() {
				setEnv("PORT", "9100")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Port).To(Equal(9100))
			})
		})

		Context("with a malformed config file", func() {
			It("should return an error", func() {
				configPath := filepath.Join(tempDir, "config.yaml")
				Expect(os.WriteFile(configPath, []byte("port: [unterminated"), 0644)).To(Succeed())
				setEnv("SECRET_KEY", "s3cret", "DATABASE_URL", "postgres://localhost/cv")

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a .env file", func() {
			BeforeEach(func() {
				envContent := "SECRET_KEY=from-dotenv\nDATABASE_URL=postgres://dotenv/cv\nAPP_NAME=FROM_DOTENV\n"
				Expect(os.WriteFile(filepath.Join(tempDir, ".env"), []byte(envContent), 0644)).To(Succeed())
			})

			It("should read required variables from it", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.SecretKey).To(Equal("from-dotenv"))
				Expect(cfg.DatabaseURL).To(Equal("postgres://dotenv/cv"))
				Expect(cfg.AppName).To(Equal("FROM_DOTENV"))
			})

			It("should not override variables already set", func() {
				setEnv("APP_NAME", "FROM_PROCESS")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AppName).To(Equal("FROM_PROCESS"))
			})
		})
	})

	Describe("ParseDuration", func() {
		It("should read bare integers as seconds", func() {
			d, err := config.ParseDuration("30")
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(30 * time.Second))
		})

		It("should read Go durations", func() {
			d, err := config.ParseDuration("1m30s")
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(90 * time.Second))
		})

		It("should reject garbage", func() {
			_, err := config.ParseDuration("soon")
			Expect(err).To(HaveOccurred())
		})
	})
})
