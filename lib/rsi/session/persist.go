package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

const (
	iniSection     = "RSI"
	iniSessionName = "session_name"
	iniSessionId   = "session_id"
	iniCookies     = "cookies"
)

type persisted struct {
	name    string
	value   string
	cookies string
}

func readSessionFile(path string) (persisted, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return persisted{}, err
	}
	file, err := ini.Load(buff)
	if err != nil {
		return persisted{}, fmt.Errorf("parse session file: %w", err)
	}
	section, err := file.GetSection(iniSection)
	if err != nil {
		return persisted{}, fmt.Errorf("parse session file: %w", err)
	}
	return persisted{
		name:    section.Key(iniSessionName).String(),
		value:   section.Key(iniSessionId).String(),
		cookies: section.Key(iniCookies).String(),
	}, nil
}

func writeSessionFile(path string, p persisted) error {
	file := ini.Empty()
	section, err := file.NewSection(iniSection)
	if err != nil {
		return err
	}
	section.Key(iniSessionName).SetValue(p.name)
	section.Key(iniSessionId).SetValue(p.value)
	section.Key(iniCookies).SetValue(p.cookies)

	buff := bytes.NewBuffer(nil)
	_, err = file.WriteTo(buff)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buff.Bytes(), 0600)
}

func removeSessionFile(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
