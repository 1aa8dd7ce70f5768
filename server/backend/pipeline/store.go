/*
 * Copyright 2026 The CodeSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pipeline

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
)

const tblJobs = "jobs"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblJobs: {
			Name: tblJobs,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"type_state": {
					Name: "type_state",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Type"},
							&memdb.StringFieldIndex{Field: "State"},
						},
					},
				},
			},
		},
	},
}

// Store keeps the latest finished jobs of every type for inspection. Older
// jobs are removed beyond the retention of their type.
type Store struct {
	db   *memdb.MemDB
	conf *Config
	seq  uint64
}

// NewStore creates a new instance of Store.
func NewStore(conf *Config) (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &Store{
		db:   db,
		conf: conf,
	}, nil
}

// Complete records the given job as completed.
func (s *Store) Complete(job Job) error {
	tc, _ := s.conf.TypeConfig(job.Type)
	job.State = StateCompleted
	return s.insert(job, tc.KeepCompleted)
}

// Fail records the given job as failed.
func (s *Store) Fail(job Job) error {
	tc, _ := s.conf.TypeConfig(job.Type)
	job.State = StateFailed
	return s.insert(job, tc.KeepFailed)
}

// Count returns the number of kept jobs of the given type and state.
func (s *Store) Count(jobType JobType, state JobState) (int, error) {
	jobs, err := s.List(jobType, state)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

// List returns the kept jobs of the given type and state, newest first.
func (s *Store) List(jobType JobType, state JobState) ([]Job, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := s.find(txn, jobType, state)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		jobs = append(jobs, records[i].Job)
	}
	return jobs, nil
}

// FindJob returns the kept job of the given ID.
func (s *Store) FindJob(id string) (Job, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblJobs, "id", id)
	if err != nil {
		return Job{}, false, fmt.Errorf("find job %s: %w", id, err)
	}
	if raw == nil {
		return Job{}, false, nil
	}
	return raw.(*jobRecord).Job, true, nil
}

// jobRecord is a finished job with its insertion order.
type jobRecord struct {
	Job
	order uint64
}

func (s *Store) insert(job Job, keep int) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	s.seq++
	if err := txn.Insert(tblJobs, &jobRecord{Job: job, order: s.seq}); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}

	records, err := s.find(txn, job.Type, job.State)
	if err != nil {
		return err
	}
	for i := 0; i < len(records)-keep; i++ {
		if err := txn.Delete(tblJobs, records[i]); err != nil {
			return fmt.Errorf("delete job %s: %w", records[i].ID, err)
		}
	}

	txn.Commit()
	return nil
}

// find returns the records of the given type and state, oldest first.
func (s *Store) find(txn *memdb.Txn, jobType JobType, state JobState) ([]*jobRecord, error) {
	iter, err := txn.Get(tblJobs, "type_state", string(jobType), string(state))
	if err != nil {
		return nil, fmt.Errorf("find %s %s jobs: %w", jobType, state, err)
	}

	var records []*jobRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		records = append(records, raw.(*jobRecord))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].order < records[j].order
	})
	return records, nil
}
