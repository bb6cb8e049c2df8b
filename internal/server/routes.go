package server

import (
	"errors"
	"strings"

	"github.com/matst80/fogsock/internal/registry"
)

var ErrBadSocketPath = errors.New("server: not a socket path")

// Socket route prefixes. The container id follows the prefix.
const (
	ControlSocketPrefix = "/v2/control/socket/id/"
	MessageSocketPrefix = "/v2/message/socket/id/"
	ConfigPath          = "/v2/config/get"
)

// ParseSocketPath maps /v2/{control,message}/socket/id/{id} to its channel
// and container id. A trailing slash is tolerated; nested ids are not.
func ParseSocketPath(path string) (registry.Channel, string, error) {
	var ch registry.Channel
	var rest string
	switch {
	case strings.HasPrefix(path, ControlSocketPrefix):
		ch, rest = registry.Control, path[len(ControlSocketPrefix):]
	case strings.HasPrefix(path, MessageSocketPrefix):
		ch, rest = registry.Message, path[len(MessageSocketPrefix):]
	default:
		return 0, "", ErrBadSocketPath
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return 0, "", ErrBadSocketPath
	}
	return ch, rest, nil
}
