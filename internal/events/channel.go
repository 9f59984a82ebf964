package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Channel addresses one party, either "client:{id}" or "business:{id}".
type Channel string

const (
	PartyClient   = "client"
	PartyBusiness = "business"
)

func ClientChannel(id uint) Channel {
	return Channel(fmt.Sprintf("%s:%d", PartyClient, id))
}

func BusinessChannel(id uint) Channel {
	return Channel(fmt.Sprintf("%s:%d", PartyBusiness, id))
}

// Party splits the channel into its party kind and user ID.
func (c Channel) Party() (string, uint, error) {
	kind, raw, ok := strings.Cut(string(c), ":")
	if !ok || (kind != PartyClient && kind != PartyBusiness) {
		return "", 0, errors.Errorf("malformed channel %q", string(c))
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return "", 0, errors.Errorf("malformed channel %q", string(c))
	}
	return kind, uint(id), nil
}

func (c Channel) String() string {
	return string(c)
}
