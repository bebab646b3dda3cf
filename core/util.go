package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var NowFunc = time.Now // mockable

// Now returns the current UTC time truncated to the microsecond (postgres precision).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StringInSlice reports whether s is one of list.
func StringInSlice(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Getwd tries to find the project root, i.e. the closest parent directory holding a go.mod file.
// go-test changes the working directory to the test package being run.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// CopyTitle returns the first "<title> (copy N)" that taken reports as free.
func CopyTitle(title string, taken func(string) (bool, error)) (string, error) {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (copy %d)", title, n)
		ok, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			return candidate, nil
		}
	}
}
