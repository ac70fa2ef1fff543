package commands

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write backend settings to an env file",
	Long: `Ask for the backend settings and write them to an env file in --dir.

With --yes no questions are asked: the current environment and defaults
are written as they are.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initOutput string
	initYes    bool
	initForce  bool
)

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", ".env.local", "File to write, relative to --dir")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Write the current settings without prompting")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(initCmd)
}

// Prompt entry points, replaced in tests.
var (
	ask    = survey.Ask
	askOne = survey.AskOne
)

func runInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(configDir, initOutput)
	exists, err := afero.Exists(config.AppFs, path)
	if err != nil {
		return err
	}
	if exists && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	cfg, err := config.LoadDir(configDir)
	if err != nil {
		return err
	}

	if !initYes {
		ui.PrintHeader("dbal", "Backend setup")
		if err := promptConfig(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.SaveEnv(path, cfg); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	ui.PrintSuccess("Wrote %s settings to %s", cfg.Provider, path)
	return nil
}

func promptConfig(cfg *config.Config) error {
	provider := string(cfg.Provider)
	if err := askOne(&survey.Select{
		Message: "Backend:",
		Options: []string{string(config.ProviderSupabase), string(config.ProviderPostgres)},
		Default: provider,
	}, &provider); err != nil {
		return err
	}
	cfg.Provider = config.Provider(provider)

	if cfg.Provider == config.ProviderPostgres {
		return promptPostgres(&cfg.Postgres)
	}
	return promptSupabase(&cfg.Supabase)
}

func promptPostgres(pg *config.PostgresConfig) error {
	port := strconv.Itoa(pg.Port)
	questions := []*survey.Question{
		{Name: "host", Prompt: &survey.Input{Message: "Host:", Default: pg.Host}, Validate: survey.Required},
		{Name: "port", Prompt: &survey.Input{Message: "Port:", Default: port}, Validate: validPort},
		{Name: "database", Prompt: &survey.Input{Message: "Database:", Default: pg.Database}, Validate: survey.Required},
		{Name: "user", Prompt: &survey.Input{Message: "User:", Default: pg.User}},
		{Name: "password", Prompt: &survey.Password{Message: "Password:"}},
		{Name: "ssl", Prompt: &survey.Confirm{Message: "Require SSL?", Default: pg.SSL}},
	}
	answers := struct {
		Host     string
		Port     string
		Database string
		User     string
		Password string
		SSL      bool
	}{}
	if err := ask(questions, &answers); err != nil {
		return err
	}
	pg.Host = answers.Host
	pg.Port, _ = strconv.Atoi(answers.Port)
	pg.Database = answers.Database
	pg.User = answers.User
	if answers.Password != "" {
		pg.Password = answers.Password
	}
	pg.SSL = answers.SSL
	return nil
}

func promptSupabase(sb *config.SupabaseConfig) error {
	if err := askOne(&survey.Input{Message: "Project URL:", Default: sb.URL}, &sb.URL, survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	var anon, service string
	if err := askOne(&survey.Password{Message: "Anon key:"}, &anon); err != nil {
		return err
	}
	if anon != "" {
		sb.AnonKey = anon
	}
	if err := askOne(&survey.Password{Message: "Service role key (optional):"}, &service); err != nil {
		return err
	}
	if service != "" {
		sb.ServiceRoleKey = service
	}
	return nil
}

func validPort(ans interface{}) error {
	s, _ := ans.(string)
	if n, err := strconv.Atoi(s); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
