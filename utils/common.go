// Package utils has convenience helpers shared across the project.
package utils

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
)

// SH runs a command through sh -c and returns its combined output.
func SH(c string) (string, error) {
	o, err := exec.Command("/bin/sh", "-c", c).CombinedOutput()
	return string(o), err
}

// SHInDir runs a command through sh -c in the given directory, with
// optional extra environment variables appended to the current ones.
func SHInDir(c, dir string, envs ...string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", c)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), envs...)
	o, err := cmd.CombinedOutput()
	return string(o), err
}

// Exists returns true if the given path exists.
func Exists(name string) bool {
	if _, err := os.Stat(name); err == nil {
		return true
	}
	return false
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a random alphanumeric string of the given length.
// It draws from crypto/rand so it is usable for generated passphrases.
func RandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// OSRelease returns the value of the given key from the os-release file.
// A different file can be passed, otherwise /etc/os-release is read.
func OSRelease(key string, file ...string) (string, error) {
	var osReleaseFile string

	if len(file) > 1 {
		return "", fmt.Errorf("only one os-release file is supported")
	}

	if len(file) == 1 {
		osReleaseFile = file[0]
	} else {
		osReleaseFile = "/etc/os-release"
	}

	release, err := godotenv.Read(osReleaseFile)
	if err != nil {
		return "", err
	}

	value, exists := release[key]
	if !exists {
		return "", fmt.Errorf("key %s not found in %s", key, osReleaseFile)
	}

	return value, nil
}

// Reboot syncs disks and reboots the machine.
func Reboot() {
	_, _ = SH("sync")
	_, _ = SH("reboot")
}

// PowerOFF syncs disks and powers off the machine.
func PowerOFF() {
	_, _ = SH("sync")
	_, _ = SH("poweroff")
}
