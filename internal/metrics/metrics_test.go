package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOp_SplitsByStatus(t *testing.T) {
	okBefore := testutil.ToFloat64(storeCommandsTotal.WithLabelValues("get", "ok"))
	errBefore := testutil.ToFloat64(storeCommandsTotal.WithLabelValues("get", "error"))

	ObserveOp("get", nil)
	ObserveOp("get", errors.New("boom"))
	ObserveOp("get", nil)

	if got := testutil.ToFloat64(storeCommandsTotal.WithLabelValues("get", "ok")) - okBefore; got != 2 {
		t.Fatalf("期望 ok 计数增加 2，实际=%v", got)
	}
	if got := testutil.ToFloat64(storeCommandsTotal.WithLabelValues("get", "error")) - errBefore; got != 1 {
		t.Fatalf("期望 error 计数增加 1，实际=%v", got)
	}
}

func TestRecordRebuild_SetsKeyGauge(t *testing.T) {
	before := testutil.ToFloat64(treeRebuildsTotal)
	RecordRebuild(42)
	if got := testutil.ToFloat64(treeRebuildsTotal) - before; got != 1 {
		t.Fatalf("期望重建计数增加 1，实际=%v", got)
	}
	if got := testutil.ToFloat64(treeKeys); got != 42 {
		t.Fatalf("期望 key 数量为 42，实际=%v", got)
	}
}

func TestWriteText_ContainsFamilies(t *testing.T) {
	RecordInvalidation("delete")
	var b strings.Builder
	if err := WriteText(&b); err != nil {
		t.Fatalf("导出指标失败：%v", err)
	}
	if !strings.Contains(b.String(), "qredis_tree_invalidations_total") {
		t.Fatalf("导出内容缺少 qredis_tree_invalidations_total：\n%s", b.String())
	}
}
