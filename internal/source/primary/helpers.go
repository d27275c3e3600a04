package primary

import "github.com/Masterminds/semver/v3"

func semverParse(s string) (*semver.Version, error) {
	return semver.NewVersion(s)
}
