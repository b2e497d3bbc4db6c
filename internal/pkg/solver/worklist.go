// Copyright 2023 The Tai-e Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package solver

import (
	"github.com/jiachenhan/taie/internal/pkg/cs"
)

// workItem states that pts newly reaches pointer.
type workItem struct {
	pointer cs.Pointer
	pts     *cs.PointsToSet
}

// workList is a FIFO queue of pending propagations.
type workList struct {
	items []workItem
}

func (w *workList) add(p cs.Pointer, pts *cs.PointsToSet) {
	if pts.IsEmpty() {
		return
	}
	w.items = append(w.items, workItem{pointer: p, pts: pts})
}

func (w *workList) empty() bool { return len(w.items) == 0 }

func (w *workList) pop() workItem {
	item := w.items[0]
	w.items = w.items[1:]
	return item
}
