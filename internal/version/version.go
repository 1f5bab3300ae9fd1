// Package version хранит сведения о сборке storefront, заполняемые через -ldflags:
//
//	-X github.com/spraynsniff/storefront/internal/version.version=v1.2.0
package version

import "fmt"

const product = "storefront"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, commit и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// UserAgent — значение заголовка User-Agent для исходящих запросов к API.
func UserAgent() string {
	if commit == "unknown" || commit == "" {
		return product + "/" + version
	}
	short := commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s/%s (%s)", product, version, short)
}

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", product, version, commit, date)
}
