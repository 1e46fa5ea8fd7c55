package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type client struct {
	baseURL    string
	httpClient *http.Client
}

type catalogEntry struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Visualization     string `json:"visualization"`
	ImageAvailable    bool   `json:"imageAvailable"`
	SnapshotAvailable bool   `json:"snapshotAvailable"`
	DisplayMode       string `json:"displayMode"`
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL      string `yaml:"baseUrl"`
	PublicPrefix string `yaml:"publicPrefix"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (c *client) get(path string) (int, []byte, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	baseURL := getenv("QCS_BASE_URL", "http://localhost:8080")
	publicPrefix := getenv("QCS_PUBLIC_PREFIX", "/snapshots")
	profileName := getenv("QCS_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "snapctl",
		Short: "snapctl CLI",
		Long:  "snapctl CLI for refreshing and inspecting the local snapshot cache.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for the snapshot service")
	root.PersistentFlags().StringVar(&publicPrefix, "public-prefix", publicPrefix, "Public prefix artifact files are served under")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("QCS_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("public-prefix") {
			if v := strings.TrimSpace(os.Getenv("QCS_PUBLIC_PREFIX")); v != "" {
				publicPrefix = v
			} else if prof.PublicPrefix != "" {
				publicPrefix = prof.PublicPrefix
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(refreshCmd(&baseURL, ui))
	root.AddCommand(listCmd(&baseURL, ui))
	root.AddCommand(pullCmd(&baseURL, &publicPrefix, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL      string
		publicPrefix string
		noPrompt     bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if publicPrefix == "" {
				publicPrefix = prof.PublicPrefix
			}
			if publicPrefix == "" {
				publicPrefix = "/snapshots"
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				publicPrefix = prompt(reader, "Public prefix", publicPrefix)
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.PublicPrefix = strings.TrimSpace(publicPrefix)

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the snapshot service")
	cmd.Flags().StringVar(&publicPrefix, "public-prefix", "", "Public prefix artifact files are served under")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func refreshCmd(baseURL *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:     "refresh",
		Short:   "Refresh the cache from the remote catalog",
		Example: "snapctl refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Refreshing snapshots..."
			if isTerminal(int(os.Stdout.Fd())) {
				spin.Start()
			}
			status, resp, err := c.get("/get-snapshots")
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var entries []catalogEntry
			if err := json.Unmarshal(resp, &entries); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Refreshed %d snapshot(s)\n", ui.ok("[OK]"), len(entries))
			printEntries(entries, ui)
			return nil
		},
	}
}

func listCmd(baseURL *string, ui *ui) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List cached snapshots",
		Example: "snapctl list --local",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/get-snapshots"
			suffix := " Fetching catalog..."
			if local {
				path = "/get-local-snapshots"
				suffix = " Reading local cache..."
			}
			c := newClient(*baseURL)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = suffix
			if isTerminal(int(os.Stdout.Fd())) {
				spin.Start()
			}
			status, resp, err := c.get(path)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var entries []catalogEntry
			if err := json.Unmarshal(resp, &entries); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			if len(entries) == 0 {
				fmt.Println(ui.dim("no snapshots"))
				return nil
			}
			printEntries(entries, ui)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Read the local cache without refreshing")
	return cmd
}

func pullCmd(baseURL, publicPrefix *string, ui *ui) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:     "pull <taskID>",
		Short:   "Download a task's artifact files",
		Example: "snapctl pull 8f3a0c1e --out ./artifacts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if outDir == "" {
				outDir = taskID
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			c := newClient(*baseURL)
			prefix := "/" + strings.Trim(*publicPrefix, "/")
			// Image files may carry a .png suffix or the bare role name,
			// depending on what the remote declared at fetch time.
			candidates := [][]string{
				{"snapshot.json"},
				{"image-small.png", "image-small"},
				{"image-large.png", "image-large"},
			}
			pulled := 0
			for _, names := range candidates {
				name, err := pullFirst(c, prefix, taskID, names, outDir)
				if err != nil {
					return err
				}
				if name == "" {
					fmt.Printf("%s %s not available\n", ui.warn("[WARN]"), names[0])
					continue
				}
				fmt.Printf("%s %s\n", ui.ok("[OK]"), name)
				pulled++
			}
			if pulled == 0 {
				return errors.New("no artifact files found; run `snapctl refresh` first")
			}
			fmt.Printf("%s Saved %d file(s) to %s\n", ui.info("[INFO]"), pulled, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (defaults to the task id)")
	return cmd
}

// pullFirst downloads the first name that exists remotely and returns it;
// empty when none do.
func pullFirst(c *client, prefix, taskID string, names []string, outDir string) (string, error) {
	for _, name := range names {
		path := prefix + "/" + url.PathEscape(taskID) + "/" + url.PathEscape(name)
		resp, err := c.httpClient.Get(c.baseURL + path)
		if err != nil {
			return "", err
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return "", fmt.Errorf("error (%d) fetching %s", resp.StatusCode, name)
		}

		dest, err := os.Create(filepath.Join(outDir, name))
		if err != nil {
			_ = resp.Body.Close()
			return "", err
		}
		var w io.Writer = dest
		if isTerminal(int(os.Stdout.Fd())) {
			bar := progressbar.DefaultBytes(resp.ContentLength, name)
			w = io.MultiWriter(dest, bar)
		}
		_, err = io.Copy(w, resp.Body)
		_ = resp.Body.Close()
		if cerr := dest.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", nil
}

func printEntries(entries []catalogEntry, ui *ui) {
	for _, e := range entries {
		mode := ui.warn(e.DisplayMode)
		if e.DisplayMode == "snapshot" {
			mode = ui.ok(e.DisplayMode)
		}
		fmt.Printf("%s %s %s %s\n", ui.info(e.ID), e.Name, ui.dim(e.Visualization), mode)
	}
}

func newClient(baseURL string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

func helpTemplate(ui *ui) string {
	title := ui.title("snapctl")
	return fmt.Sprintf(`%s — CLI for the snapshot cache service

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  snapctl init
  snapctl refresh
  snapctl list --local
  snapctl pull 8f3a0c1e --out ./artifacts

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("QCS_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".snapctl", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("QCS_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
