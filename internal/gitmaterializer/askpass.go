package gitmaterializer

import (
	"fmt"
	"os"
	"path/filepath"
)

const credentialEnvVar = "ANSIBLE_RUNNER_GIT_CREDENTIAL"

// askPassScript is the one-line script Git invokes in place of an
// interactive password prompt. It prints exactly the carrier variable's
// value, per SPEC_FULL §4.B — the credential never touches argv.
const askPassScript = "#!/bin/sh\nexec printf '%s' \"$" + credentialEnvVar + "\"\n"

// askPass records where the side-channel script was written. newAskPass
// writes the script into dir and returns it together with the environment
// variables a Git child process needs to authenticate without ever seeing
// the credential on its command line.
type askPass struct {
	scriptPath string
}

func newAskPass(dir, credential string) (*askPass, []string, error) {
	path := filepath.Join(dir, ".git-askpass.sh")
	if err := os.WriteFile(path, []byte(askPassScript), 0o700); err != nil {
		return nil, nil, fmt.Errorf("gitmaterializer: failed to write askpass script: %w", err)
	}

	env := append(os.Environ(),
		"GIT_ASKPASS="+path,
		"GIT_TERMINAL_PROMPT=0",
		credentialEnvVar+"="+credential,
	)

	return &askPass{scriptPath: path}, env, nil
}
