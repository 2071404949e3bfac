// Copyright 2026 The Pulse Authors
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

package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_EnqueueStampsQueuedAt(t *testing.T) {
	d := NewQueueDispatcher(4)

	d.Enqueue(context.Background(), Notification{
		Kind:        KindQuestionApproved,
		TenantID:    "tenant-1",
		RecipientID: "user-1",
	})

	require.Len(t, d.Queue(), 1)
	n := <-d.Queue()
	assert.Equal(t, KindQuestionApproved, n.Kind)
	assert.False(t, n.QueuedAt.IsZero())
}

func TestDispatcher_AnonymousRecipientSkipped(t *testing.T) {
	d := NewQueueDispatcher(4)

	d.Enqueue(context.Background(), Notification{
		Kind:     KindQuestionRejected,
		TenantID: "tenant-1",
	})

	assert.Len(t, d.Queue(), 0)
}

// A full queue must never block the moderation pipeline.
func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	d := NewQueueDispatcher(1)
	ctx := context.Background()

	d.Enqueue(ctx, Notification{Kind: KindQuestionApproved, RecipientID: "user-1"})
	d.Enqueue(ctx, Notification{Kind: KindQuestionApproved, RecipientID: "user-2"})

	require.Len(t, d.Queue(), 1)
	n := <-d.Queue()
	assert.Equal(t, "user-1", n.RecipientID)
}
