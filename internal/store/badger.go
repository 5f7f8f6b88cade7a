package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

// BadgerStore keeps draw records in a local Badger database. Badger
// transactions give the conflict detection TransitionStatus relies on.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func stateKey(key string) []byte {
	return []byte("draw/" + key + "/state")
}

func assignmentKey(drawKey, ticketID string) []byte {
	return []byte("draw/" + drawKey + "/win/" + ticketID)
}

func tierKey(drawKey, tierName string) []byte {
	return []byte("draw/" + drawKey + "/tier/" + tierName)
}

func (s *BadgerStore) GetState(key string) (*draw.State, error) {
	var state draw.State
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, stateKey(key), &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BadgerStore) PutState(key string, state *draw.State) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, stateKey(key), state)
	})
}

func (s *BadgerStore) TransitionStatus(key string, from, to draw.Status) (*draw.State, error) {
	var state draw.State
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, stateKey(key), &state); err != nil {
			return err
		}
		if state.Status != from {
			return &draw.InvalidStateError{Expected: from, Actual: state.Status}
		}
		state.Status = to
		return setJSON(txn, stateKey(key), &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BadgerStore) GetAssignment(drawKey, ticketID string) (*draw.WinAssignment, error) {
	var assignment draw.WinAssignment
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, assignmentKey(drawKey, ticketID), &assignment)
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (s *BadgerStore) PutAssignment(drawKey string, assignment *draw.WinAssignment) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSONOnce(txn, assignmentKey(drawKey, assignment.TicketID), assignment)
	})
}

func (s *BadgerStore) ListAssignments(drawKey string) ([]*draw.WinAssignment, error) {
	return listJSON[draw.WinAssignment](s.db, "draw/"+drawKey+"/win/")
}

func (s *BadgerStore) PutTierResult(drawKey string, result *draw.TierResult) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSONOnce(txn, tierKey(drawKey, result.TierName), result)
	})
}

func (s *BadgerStore) ListTierResults(drawKey string) ([]*draw.TierResult, error) {
	return listJSON[draw.TierResult](s.db, "draw/"+drawKey+"/tier/")
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, value any) error {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, value)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func setJSONOnce(txn *badger.Txn, key []byte, value any) error {
	if _, err := txn.Get(key); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	} else if err != badger.ErrKeyNotFound {
		return err
	}
	return setJSON(txn, key, value)
}

func listJSON[T any](db *badger.DB, prefix string) ([]*T, error) {
	result := make([]*T, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var value T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &value)
			})
			if err != nil {
				return err
			}
			result = append(result, &value)
		}
		return nil
	})
	return result, err
}
