// Package ci implements the CI environment policy around connector
// selection: required-variable validation, the remote/local secrets
// decision table, and the run-report upload.
package ci

import (
	"os"
	"strings"

	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
	"github.com/parallaxworks/parallax/pkg/vcs"
)

// Environment variables consumed by CI runs.
const (
	EnvGSMCredentials    = "GCP_GSM_CREDENTIALS"
	EnvReportBucket      = "CI_REPORT_BUCKET_NAME"
	EnvGithubAccessToken = "CI_GITHUB_ACCESS_TOKEN"
	EnvDockerHubUsername = "DOCKER_HUB_USERNAME"
	EnvDockerHubPassword = "DOCKER_HUB_PASSWORD"
)

// RequiredCIVariables must all be non-empty when running outside local
// mode.
var RequiredCIVariables = []string{
	EnvGSMCredentials,
	EnvReportBucket,
	EnvGithubAccessToken,
	EnvDockerHubUsername,
	EnvDockerHubPassword,
}

// ResolveSecretsMode decides whether connector secrets come from the
// remote secret manager or the local secrets directory.
//
// A nil explicit flag defers to credential presence. An explicit true
// demands credentials and is a usage error without them. An explicit
// false always selects local secrets.
func ResolveSecretsMode(explicit *bool, gsmCredentials string) (bool, error) {
	hasCredentials := gsmCredentials != ""

	if explicit == nil {
		if hasCredentials {
			logger.Info("GCP_GSM_CREDENTIALS found, using remote connector secrets")
			return true, nil
		}
		logger.Info("no GCP_GSM_CREDENTIALS found, using local connector secrets")
		return false, nil
	}

	if *explicit {
		if !hasCredentials {
			return false, errors.New(errors.ErrorTypeUsage,
				"--use-remote-secrets was provided but no GCP_GSM_CREDENTIALS environment variable was found")
		}
		logger.Info("GCP_GSM_CREDENTIALS found, using remote connector secrets")
		return true, nil
	}

	logger.Info("using local connector secrets as requested")
	return false, nil
}

// ValidateEnvironment checks the execution environment before any work
// starts. Local runs must be invoked from a repository root; CI runs
// must provide every required variable. Violations are usage errors
// naming everything that is missing.
func ValidateEnvironment(isLocal bool, repoRoot string) error {
	if isLocal {
		if !vcs.IsRepoRoot(repoRoot) {
			return errors.Newf(errors.ErrorTypeUsage,
				"%s is not a repository root: run this command from the repository root", repoRoot)
		}
		return nil
	}

	var missing []string
	for _, name := range RequiredCIVariables {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.ErrorTypeUsage,
			"running in a CI context requires environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}
