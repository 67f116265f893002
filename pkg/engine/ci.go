package engine

import "os"

// ciEnvVars are set by the CI providers checkup recognizes.
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"BUILD_NUMBER",
	"RUN_ID",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"TRAVIS",
	"BUILDKITE",
	"JENKINS_URL",
	"TF_BUILD",
	"TEAMCITY_VERSION",
	"DRONE",
	"BITBUCKET_COMMIT",
	"APPVEYOR",
	"CODEBUILD_BUILD_ARN",
}

// IsCI reports whether the process runs under a recognized CI environment.
func IsCI() bool {
	if v, ok := os.LookupEnv("CI"); ok && v == "false" {
		return false
	}
	for _, name := range ciEnvVars {
		if v := os.Getenv(name); v != "" {
			return true
		}
	}
	return false
}
