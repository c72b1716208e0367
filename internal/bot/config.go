package bot

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the bot reads from the environment.
// A local .env file is honoured when present.
type Config struct {
	Token    string `envconfig:"DISCORD_TOKEN" required:"true"`
	GuildID  string `envconfig:"GUILD_ID"`                         // if set, slash commands register instantly for that guild
	DBPath   string `envconfig:"DB_PATH" default:"./data/remy.db"` // sqlite file; directory is created on open
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`         // debug|info|warn|error
}

func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
