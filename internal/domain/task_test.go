package domain

import "testing"

func TestTask_CloneIsIndependentCopy(t *testing.T) {
	original := &Task{TaskID: "t1", StockCode: "600519", Status: TaskProcessing, Progress: 40}
	clone := original.Clone()

	clone.Progress = 100
	clone.Status = TaskCompleted

	if original.Progress != 40 || original.Status != TaskProcessing {
		t.Error("mutating the clone must not affect the original")
	}
	if clone.TaskID != original.TaskID {
		t.Error("clone should carry over identity fields")
	}
}

func TestTask_CloneOfNilIsNil(t *testing.T) {
	var t1 *Task
	if t1.Clone() != nil {
		t.Error("cloning a nil task should return nil")
	}
}
