// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry implements a minimal in-memory keyword index with an
// insert(doc)/query(keywords) contract. The embedded full-text search
// engine's internals are explicitly out of scope — the
// aggregator only depends on this opaque contract: higher score is more
// relevant, and ties are broken by the caller.
package registry

import (
	"strings"
	"sync"
)

// Document is one indexable unit: a tool's prefixed name plus the text
// (name + description) that keywords are matched against.
type Document struct {
	ID   string
	Text string
}

// Result is one scored hit from a Query call.
type Result struct {
	ID    string
	Score float64
}

// Index is a per-group inverted index over tool documents. Safe for
// concurrent use: built once per group and read by many concurrent
// search calls.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]int // term -> docID -> term frequency
	docLen   map[string]int            // docID -> token count, for length-normalized scoring
}

// New returns an empty index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int),
	}
}

// Insert adds a document to the index. Re-inserting the same ID replaces
// its postings.
func (ix *Index) Insert(doc Document) {
	tokens := tokenize(doc.Text)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(doc.ID)
	ix.docLen[doc.ID] = len(tokens)
	for _, tok := range tokens {
		bucket, ok := ix.postings[tok]
		if !ok {
			bucket = make(map[string]int)
			ix.postings[tok] = bucket
		}
		bucket[doc.ID]++
	}
}

func (ix *Index) removeLocked(id string) {
	if _, ok := ix.docLen[id]; !ok {
		return
	}
	for _, bucket := range ix.postings {
		delete(bucket, id)
	}
	delete(ix.docLen, id)
}

// Query scores every keyword's matches against indexed documents. A
// document's score is the sum, across keywords, of its term frequency
// divided by its token count (so short, exact names outscore long
// descriptions that merely mention the keyword). Results are sorted by
// descending score; the caller is responsible for any tie-break beyond
// that.
func (ix *Index) Query(keywords []string) []Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]float64)
	for _, kw := range keywords {
		for _, tok := range tokenize(kw) {
			bucket, ok := ix.postings[tok]
			if !ok {
				continue
			}
			for id, freq := range bucket {
				length := ix.docLen[id]
				if length == 0 {
					length = 1
				}
				scores[id] += float64(freq) / float64(length)
			}
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sortByScoreDesc(results)
	return results
}

func sortByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
