// Package version carries the build-time version stamp. The variables are
// overridden through -ldflags at release build time.
package version

import (
	"strconv"
	"time"
)

const DevelopmentVersion = "dev"

var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = "" // unix seconds, as a string
)

type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
	BuildTime  string `json:"buildTimestamp,omitempty"`
}

func Current() Info {
	info := Info{
		Version:    ProductVersion,
		CommitHash: CommitHash,
	}
	if BuildTimestamp != "" {
		if seconds, err := strconv.ParseInt(BuildTimestamp, 10, 64); err == nil {
			info.BuildTime = time.Unix(seconds, 0).UTC().Format(time.RFC3339)
		}
	}
	return info
}
