package rtcsession

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shynome/rtcsession/signaling"
)

// Config is fixed for the lifetime of a Connection.
type Config struct {
	// URL of the signaling endpoint: ws, wss, http or https.
	URL         string         `yaml:"url"`
	ChannelID   string         `yaml:"channel_id"`
	Role        signaling.Role `yaml:"role"`
	ClientID    string         `yaml:"client_id"`
	Metadata    any            `yaml:"metadata"`
	Multistream bool           `yaml:"multistream"`
	Header      http.Header    `yaml:"header"`
}

var errInvalidConfig = errors.New("rtcsession: invalid config")

func (c Config) validate(needURL bool) error {
	switch {
	case needURL && c.URL == "":
		return fmt.Errorf("%w: url is required", errInvalidConfig)
	case c.ChannelID == "":
		return fmt.Errorf("%w: channel id is required", errInvalidConfig)
	case !c.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", errInvalidConfig, c.Role)
	}
	return nil
}
