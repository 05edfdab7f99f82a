// Copyright 2023 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dcdpr/taxcount/internal/config"
	"github.com/dcdpr/taxcount/internal/logging"

	"github.com/dgraph-io/badger/v4"
)

const sectionKeyPrefix = "section_"

// Storage is a Badger-backed key/value store whose sections are each
// gob-encoded and written under their own key. cmd/taxcount opens and
// closes it, but no part of a run reads or writes sections: checkpoints
// are gob files written and read by internal/checkpoint.
type Storage struct {
	db *badger.DB
}

var globalStorage = &Storage{}

func (s *Storage) Load() error {
	cfg := config.GetConfig()
	badgerOpts := badger.DefaultOptions(cfg.Storage.Directory).
		WithLogger(NewBadgerLogger()).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSection gob-encodes v and stores it under name.
func (s *Storage) PutSection(name string, v any) error {
	logger := logging.GetLogger()
	logger.Debugf("writing checkpoint section %q to storage", name)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("failed to encode section %q: %w", name, err)
	}
	key := []byte(sectionKeyPrefix + name)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
}

// GetSection decodes the section previously stored under name into v. It
// returns false (and leaves v untouched) if no section by that name exists.
func (s *Storage) GetSection(name string, v any) (bool, error) {
	key := []byte(sectionKeyPrefix + name)
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to decode section %q: %w", name, err)
	}
	return found, nil
}

// DeleteSection removes a previously stored section, if present.
func (s *Storage) DeleteSection(name string) error {
	key := []byte(sectionKeyPrefix + name)
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func GetStorage() *Storage {
	return globalStorage
}

// BadgerLogger is a wrapper type to give our logger the expected interface
type BadgerLogger struct {
	*logging.Logger
}

func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{
		Logger: logging.GetLogger(),
	}
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.Logger.Warnf(msg, args...)
}
