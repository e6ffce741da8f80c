package logfields

import "go.uber.org/zap"

func PullRequest(val int) zap.Field {
	return zap.Int("github.pull_request", val)
}

func Repository(val string) zap.Field {
	return zap.String("git.repository", val)
}

func RepositoryOwner(val string) zap.Field {
	return zap.String("github.repository_owner", val)
}

func Branch(val string) zap.Field {
	return zap.String("git.branch", val)
}

func Commit(val string) zap.Field {
	return zap.String("git.commit", val)
}

func File(val string) zap.Field {
	return zap.String("git.file", val)
}

func Checkpoint(val string) zap.Field {
	return zap.String("git.checkpoint", val)
}

func Label(val string) zap.Field {
	return zap.String("github.label", val)
}
