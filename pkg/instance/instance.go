// Package instance names the running process in logs and lease owners.
package instance

import (
	"os"
	"strings"
)

const EnvInstanceID = "SHOPFEED_INSTANCE_ID"

var hostname = os.Hostname

// GetID prefers SHOPFEED_INSTANCE_ID, then the host name, then "<service>-0".
func GetID(service string) string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	if service == "" {
		service = "shopfeed"
	}
	return service + "-0"
}
