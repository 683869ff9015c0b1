package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/sealnote/internal/config"
	"github.com/aretw0/sealnote/internal/platform"
	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/identity"
	"github.com/aretw0/sealnote/pkg/signer"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	verbose    bool
	configPath string
	login      string
	adapter    string
	root       string
	yes        bool

	// prompt is where the approval question is read from. Nil means the
	// controlling terminal, falling back to stdin.
	prompt io.Reader
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&globals{})
}

func buildRootCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sealnote",
		Short: "Encrypted personal notes kept in a local per-login database",
		Long: `SealNote stores notes locally as paired metadata and ciphertext.
Encryption keys and sharing groups belong to the identity service; plaintext
never reaches the disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}

			opts := &slog.HandlerOptions{
				Level: level,
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
			slog.SetDefault(logger)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&g.configPath, "config", "", "Config file (default <root>/config.yaml)")
	flags.StringVar(&g.login, "login", "", "Account to open the store for")
	flags.StringVar(&g.adapter, "adapter", "", "Storage engine: bolt, sqlite, fs or memory")
	flags.StringVar(&g.root, "root", "", "Data root (default ~/.sealnote)")
	flags.BoolVarP(&g.yes, "yes", "y", false, "Approve the access request without prompting")

	cmd.AddCommand(
		newWriteCmd(g),
		newListCmd(g),
		newReadCmd(g),
		newDeleteCmd(g),
		newExportCmd(g),
		newImportCmd(g),
		newShareCmd(g),
		newInboxCmd(g),
		newKeygenCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig merges the config file, the environment and the flags.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.root != "" {
		cfg.Root = g.root
	}
	if g.adapter != "" {
		cfg.Adapter = g.adapter
	}
	if g.login != "" {
		cfg.Login = g.login
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Login) == "" {
		return nil, fmt.Errorf("no login: use --login or %s", config.EnvLogin)
	}
	return cfg, nil
}

func loadSigner(cfg *config.Config) (*signer.Signer, error) {
	requester := cfg.Requester
	if requester == "" {
		requester = signer.DefaultRequester
	}
	if cfg.SigningKey != "" {
		return signer.FromBase64(requester, cfg.SigningKey)
	}
	slog.Debug("no signing key configured, using an ephemeral one", "requester", requester)
	return signer.Generate(requester)
}

// openStore logs in and opens the note store. The returned func releases the
// store and the keyring.
func (g *globals) openStore(ctx context.Context, cmd *cobra.Command) (*core.Service, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []platform.Option{
		platform.WithAdapter(cfg.Adapter),
		platform.WithReadOnly(cfg.ReadOnly),
		platform.WithApprovalTimeout(cfg.ApprovalTimeout),
		platform.WithLogger(slog.Default()),
	}
	root := platform.DataRoot(cfg.Root, opts...)

	app, err := loadSigner(cfg)
	if err != nil {
		return nil, nil, err
	}

	approver := identity.AutoApprove
	if !g.yes {
		approver = promptApprover(g.prompt, cmd.ErrOrStderr())
	}

	authority, err := identity.Open(identity.Config{
		Path:       cfg.KeyringPath(root),
		Passphrase: []byte(cfg.KeyringPassphrase),
		Trusted:    map[string]ed25519.PublicKey{app.Requester(): app.PublicKey()},
		Approver:   approver,
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := platform.Login(ctx, root, authority, cfg.Login, app.Sign, opts...)
	if err != nil {
		authority.Close()
		return nil, nil, err
	}

	return svc, func() {
		if err := svc.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
		authority.Close()
	}, nil
}

// promptApprover asks on out and reads the answer from in.
func promptApprover(in io.Reader, out io.Writer) identity.Approver {
	return func(ctx context.Context, req identity.ApprovalRequest) (bool, error) {
		src := in
		var tty *os.File
		if src == nil {
			if f, err := os.Open("/dev/tty"); err == nil {
				tty, src = f, f
			} else {
				src = os.Stdin
			}
		}

		fmt.Fprintf(out, "Grant %s access to the notes of %s? (request %s, key %s) [y/N]: ",
			req.Requester, req.Login, req.ID, req.Fingerprint)

		answer := make(chan string, 1)
		go func() {
			line, _ := bufio.NewReader(src).ReadString('\n')
			answer <- line
		}()

		select {
		case <-ctx.Done():
			// Closing the tty unblocks the pending read. Stdin and injected
			// readers are not ours to close; that read ends on the next line or EOF.
			if tty != nil {
				tty.Close()
			}
			return false, ctx.Err()
		case line := <-answer:
			if tty != nil {
				tty.Close()
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			default:
				return false, nil
			}
		}
	}
}

// findNote returns the note with the given id, metadata only.
func findNote(ctx context.Context, svc *core.Service, id string) (*core.Note, error) {
	notes, err := svc.GetNotes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
}
