// Точка входа генератора статического манифеста колод.
// Сканирует директорию с колодами и записывает decks.json.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/deckstore/internal/config"
	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/manifest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd собирает команду генератора. Флаги необязательны.
func newRootCmd() *cobra.Command {
	var (
		dir        string
		out        string
		urlPrefix  string
		extensions []string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "deckstore-manifest",
		Short:         "Генерация decks.json из директории с колодами",
		Version:       config.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			gen := manifest.NewGenerator(dir, urlPrefix, model.ParseExtensions(extensions), logger)
			entries := gen.Generate()

			if err := manifest.WriteFile(out, entries); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Не удалось записать %s: %v\n", out, err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d entries)\n", out, len(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", manifest.DefaultDir, "директория с файлами колод")
	cmd.Flags().StringVar(&out, "out", manifest.DefaultOutput, "путь к выходному манифесту")
	cmd.Flags().StringVar(&urlPrefix, "url-prefix", manifest.DefaultURLPrefix, "префикс ссылок на колоды")
	cmd.Flags().StringSliceVar(&extensions, "ext", []string(model.DefaultExtensions), "допустимые расширения")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "подробный вывод")

	return cmd
}
