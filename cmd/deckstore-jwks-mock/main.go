// JWKS Mock Server — эмулятор провайдера аутентификации для локальной
// разработки Deckstore. Адрес JWKS для сервиса: DS_JWKS_URL=http://<addr>/jwks.
package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/deckstore/internal/config"
	"github.com/bigkaa/deckstore/internal/jwksmock"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		keySize int
		tlsCert string
		tlsKey  string
	)

	cmd := &cobra.Command{
		Use:           "deckstore-jwks-mock",
		Short:         "Эмулятор JWKS и выдачи токенов для локальной разработки",
		Version:       config.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

			logger.Info("Генерация RSA ключевой пары", slog.Int("key_size", keySize))
			iss, err := jwksmock.NewIssuer(keySize, logger)
			if err != nil {
				logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           iss.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Запуск: TLS или HTTP
			if tlsCert != "" && tlsKey != "" {
				logger.Info("Запуск JWKS Mock Server (HTTPS)", slog.String("addr", addr))
				err = srv.ListenAndServeTLS(tlsCert, tlsKey)
			} else {
				logger.Warn("TLS не настроен, работаем по HTTP", slog.String("addr", addr))
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Ошибка сервера", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8081", "адрес HTTP-сервера")
	cmd.Flags().IntVar(&keySize, "key-size", 2048, "размер RSA ключа")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "путь к TLS сертификату (пусто — HTTP)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "путь к TLS приватному ключу")
	return cmd
}
