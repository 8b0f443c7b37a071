package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tutorhub/tutor-hub/internal/application/routing"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
)

// routeOutput - то, что печатает команда route.
type routeOutput struct {
	Handler    string `json:"handler"`
	Subject    string `json:"subject"`
	Source     string `json:"source"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Urgency    string `json:"urgency,omitempty"`
	Mood       string `json:"mood,omitempty"`
	Note       string `json:"note,omitempty"`
}

func newRouteCmd() *cobra.Command {
	var (
		subject   string
		withModel bool
	)
	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Show which tutor would answer a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			opts := []routing.Option{routing.WithHistoryLimit(cfg.Tutor.HistoryLimit)}
			if withModel {
				_, slogger := setupLogger(cfg)
				provider, err := llm.NewProvider(cmd.Context(), llm.ConfigFrom(cfg.LLM), slogger)
				if err != nil {
					return fmt.Errorf("model provider: %w", err)
				}
				opts = append(opts, routing.WithClassifier(
					routing.NewModelClassifier(provider, cfg.Catalog.SubjectNames(), cfg.LLM.ClassifierTimeout, nil),
				))
			}
			router := routing.NewRouter(cfg.Catalog, opts...)

			sel := router.Route(cmd.Context(), routing.RouteInput{
				Message:         strings.Join(args, " "),
				DeclaredSubject: subject,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(routeOutput{
				Handler:    string(sel.Tag),
				Subject:    sel.Subject,
				Source:     string(sel.Source),
				Topic:      sel.Topic,
				Difficulty: string(sel.Difficulty),
				Urgency:    string(sel.Urgency),
				Mood:       string(sel.Mood),
				Note:       sel.Note,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject declared by the student")
	cmd.Flags().BoolVar(&withModel, "model", false, "Consult the model classifier after the lexical pass")
	return cmd
}
