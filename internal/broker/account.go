package broker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Account is one row of the broker's CSV account file: "id,user,pass".
type Account struct {
	ID   uint64
	User string
	Pass string
}

// Matches reports whether the given credentials match this account
// exactly.
func (a Account) Matches(user, pass string) bool {
	return a.User == user && a.Pass == pass
}

// LoadAccounts reads a CSV account file, one "id,user,pass" row per
// line. Blank lines are skipped. An absent accounts file is the
// caller's signal that authentication is disabled, so this function is
// only called once a path has been configured.
func LoadAccounts(path string) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var accounts []Account
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		row := strings.TrimSpace(scanner.Text())
		if row == "" {
			continue
		}
		fields := strings.Split(row, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("accounts file %s: line %d: expected 3 fields, got %d", path, line, len(fields))
		}
		id, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("accounts file %s: line %d: bad id: %w", path, line, err)
		}
		accounts = append(accounts, Account{ID: id, User: strings.TrimSpace(fields[1]), Pass: strings.TrimSpace(fields[2])})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// MatchAccount returns the account matching the given credentials, if
// any. A nil accounts slice is the "auth disabled" state and always
// reports no match (the caller checks for that state separately).
func MatchAccount(accounts []Account, user, pass string) (Account, bool) {
	for _, a := range accounts {
		if a.Matches(user, pass) {
			return a, true
		}
	}
	return Account{}, false
}
