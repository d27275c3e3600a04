package handlers

import (
	"net/http"

	"github.com/Masterminds/semver/v3"

	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/registry/blobstore"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

// selectEntry implements the version_req/target_req matching of §6:
// "latest" picks the highest semver, "all" allows any target.
func selectEntry(entries []source.IndexEntry, versionReq, targetReq string) (source.IndexEntry, bool) {
	var best source.IndexEntry
	var bestSet bool
	var bestVer *semver.Version

	for _, e := range entries {
		if targetReq != "all" {
			tk, err := target.Parse(targetReq)
			if err != nil || e.TargetKind != tk {
				continue
			}
		}

		ver, err := semver.NewVersion(e.Version)
		if err != nil {
			continue
		}

		if versionReq != "latest" {
			if e.Version != versionReq {
				continue
			}
			return e, true
		}

		if !bestSet || ver.GreaterThan(bestVer) {
			best, bestVer, bestSet = e, ver, true
		}
	}
	return best, bestSet
}

func semverCompatVersion(s string) (*semver.Version, error) {
	return semver.NewVersion(s)
}

func archiveKeyFor(pn names.PackageName, vid names.VersionID) string {
	return blobstore.ArchiveKey(pn.Escaped(), vid.Escaped())
}

// statusFor maps an error's Kind to the HTTP status codes of §7.
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.InputValidation:
		return http.StatusBadRequest
	case errors.Resolution:
		return http.StatusConflict
	case errors.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
