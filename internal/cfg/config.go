package cfg

import (
	"io"

	"github.com/pelletier/go-toml"
)

type Config struct {
	HTTPListenAddr            string             `toml:"http_server_listen_addr"`
	HTTPGithubWebhookEndpoint string             `toml:"github_webhook_endpoint"`
	HTTPMetricsEndpoint       string             `toml:"metrics_endpoint"`
	GithubWebHookSecret       string             `toml:"github_webhook_secret"`
	GithubAPIToken            string             `toml:"github_api_token"`
	LogFormat                 string             `toml:"log_format"`
	LogTimeKey                string             `toml:"log_time_key"`
	LogLevel                  string             `toml:"log_level"`
	Git                       Git                `toml:"git"`
	Merge                     Merge              `toml:"merge"`
	Repositories              []GithubRepository `toml:"repository"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"repository"`
}

// Git describes the local clone of the manifest repository that merge runs
// operate on and the committer identity used for finalized commits.
type Git struct {
	Directory      string `toml:"directory"`
	Remote         string `toml:"remote" default:"origin"`
	CommitterName  string `toml:"committer_name"`
	CommitterEmail string `toml:"committer_email"`
}

// Merge configures the autosquash merge runs.
type Merge struct {
	TriggerLabel             string `toml:"trigger_label"`
	FilterQuery              string `toml:"filter_query"`
	FormulaDir               string `toml:"formula_dir" default:"Formula"`
	CaskDir                  string `toml:"cask_dir" default:"Casks"`
	Reason                   string `toml:"reason"`
	ResolveConflictsManually bool   `toml:"resolve_conflicts_manually"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
