// Package profile defines the learner progress record that is synchronized
// between devices.
//
// Two types travel through the system:
//
//	Profile   - name, grade, per-grade level completion, coin balance
//	Syncable  - a Profile plus sync metadata (timestamp, device id,
//	            schema version, entitlement mirror)
//
// A Profile is only changed through its mutation methods (CompleteLevel,
// SetGrade, AwardCoins, Rename). Every mutation path clamps out-of-range input
// instead of rejecting it: grades are kept in [1,7] and levels in [1,50].
//
// A Syncable is a value. Changing the wrapped profile produces a new Syncable
// with a fresh LastModified via Syncable.WithProfile; the profile, timestamp
// and device identifier always travel together.
//
// Wire layout (schema version 2):
//
//	{
//	  "profile": {
//	    "name": "Ada",
//	    "grade": 3,
//	    "completedLevelsByGrade": {"1": [], "3": [1, 2, 3], ...},
//	    "currentLevelByGrade": {"1": 1, "3": 4, ...},
//	    "totalCoins": 300,
//	    "coinsMigrationCompleted": true
//	  },
//	  "lastModified": "2026-01-02T15:04:05Z",
//	  "deviceIdentifier": "3f0c...",
//	  "schemaVersion": 2,
//	  "isWatchUnlocked": false
//	}
//
// Older shapes are decoded by package migrate, not here.
package profile
