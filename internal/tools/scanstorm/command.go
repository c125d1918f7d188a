package scanstorm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/tools/common"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/tools/loadgen"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/tools/ui"
)

type options struct {
	baseURL      string
	profile      string
	tenantID     string
	subject      string
	class        string
	period       int
	students     int
	scansPerUser int
	jwtIssuer    string
	jwtAudience  string
	jwtSecret    string
	ci           bool
}

// NewCommand exercises a running instance with concurrent redemptions
// and reports how the ledger resolved them. Point it at a disposable
// environment: it mints its own tokens and writes real records.
func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "scanstorm",
		Short: "Storm a session with concurrent scans and verify single-acceptance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.jwtSecret == "" {
				opts.jwtSecret = os.Getenv("JWT_ACCESS_SECRET")
			}
			if opts.jwtSecret == "" {
				return fmt.Errorf("a signing secret is required (--jwt-secret or JWT_ACCESS_SECRET)")
			}
			details, err := run(opts, "scanstorm", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:      opts.baseURL,
					Profile:      opts.profile,
					TenantID:     opts.tenantID,
					Subject:      opts.subject,
					Class:        opts.class,
					Period:       opts.period,
					Students:     opts.students,
					ScansPerUser: opts.scansPerUser,
					JWTIssuer:    opts.jwtIssuer,
					JWTAudience:  opts.jwtAudience,
					JWTSecret:    opts.jwtSecret,
					Timeout:      10 * time.Second,
				})
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("requests total=%d elapsed=%s", res.TotalRequests, res.Elapsed.Round(time.Millisecond)),
					fmt.Sprintf("accepted=%d (late=%d) duplicates=%d rejected=%d failures=%d",
						res.Accepted, res.Late, res.Duplicates, res.Rejected, res.Failures),
				}
				for class, count := range res.StatusClasses {
					details = append(details, fmt.Sprintf("status %s: %d", class, count))
				}
				if res.Accepted != opts.students {
					return details, fmt.Errorf("expected exactly %d accepted scans (one per student), got %d", opts.students, res.Accepted)
				}
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "scanstorm", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&opts.profile, "profile", "burst", "scan profile: burst or steady")
	cmd.Flags().StringVar(&opts.tenantID, "tenant", "loadgen-tenant", "tenant id to storm")
	cmd.Flags().StringVar(&opts.subject, "subject", "Loadgen", "subject for the opened session")
	cmd.Flags().StringVar(&opts.class, "class", "General", "class label")
	cmd.Flags().IntVar(&opts.period, "period", 1, "period number")
	cmd.Flags().IntVar(&opts.students, "students", 20, "number of concurrent students")
	cmd.Flags().IntVar(&opts.scansPerUser, "scans-per-user", 2, "scans per student (>1 exercises duplicate handling)")
	cmd.Flags().StringVar(&opts.jwtIssuer, "jwt-issuer", "qr-attendance-session-service", "issuer claim for minted tokens")
	cmd.Flags().StringVar(&opts.jwtAudience, "jwt-audience", "qr-attendance", "audience claim for minted tokens")
	cmd.Flags().StringVar(&opts.jwtSecret, "jwt-secret", "", "HS256 secret matching the target instance")
	cmd.Flags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}
