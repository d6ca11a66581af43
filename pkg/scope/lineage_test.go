package scope

import "testing"

func strp(s string) *string { return &s }

func sampleForest() []Node {
	return []Node{
		{NodeID: "acme", ParentID: nil, NodeType: NodeTypeOrg},
		{NodeID: "eng", ParentID: strp("acme"), NodeType: NodeTypeUnit},
		{NodeID: "sre", ParentID: strp("eng"), NodeType: NodeTypeTeam},
		{NodeID: "platform", ParentID: strp("eng"), NodeType: NodeTypeTeam},
	}
}

func TestLineageOrdersRootToSelf(t *testing.T) {
	nodes := sampleForest()
	chain, err := Lineage(nodes, "sre", DefaultMaxTreeDepth)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(chain))
	for i, n := range chain {
		ids[i] = n.NodeID
	}
	want := []string{"acme", "eng", "sre"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestLineageOfRootIsSingleNode(t *testing.T) {
	chain, err := Lineage(sampleForest(), "acme", DefaultMaxTreeDepth)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 || chain[0].NodeID != "acme" {
		t.Errorf("got %v", chain)
	}
}

func TestLineageDetectsCycle(t *testing.T) {
	cyclic := []Node{
		{NodeID: "a", ParentID: strp("b")},
		{NodeID: "b", ParentID: strp("a")},
	}
	_, err := Lineage(cyclic, "a", DefaultMaxTreeDepth)
	if err == nil {
		t.Fatal("expected an error for a cyclic tree")
	}
}

func TestLineageExceedsMaxDepth(t *testing.T) {
	var nodes []Node
	nodes = append(nodes, Node{NodeID: "n0"})
	for i := 1; i <= 40; i++ {
		id := "n" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		parent := nodes[len(nodes)-1].NodeID
		nodes = append(nodes, Node{NodeID: id, ParentID: strp(parent)})
	}

	_, err := Lineage(nodes, nodes[len(nodes)-1].NodeID, DefaultMaxTreeDepth)
	if err == nil {
		t.Fatal("expected a max-depth error for a 40-deep chain with a 32 limit")
	}
}

func TestDescendants(t *testing.T) {
	nodes := sampleForest()
	desc := Descendants(nodes, "acme")
	for _, id := range []string{"eng", "sre", "platform"} {
		if !desc[id] {
			t.Errorf("expected %q to be a descendant of acme", id)
		}
	}
	if desc["acme"] {
		t.Error("a node should not be its own descendant")
	}
}

func TestWouldCreateCycleDetectsDescendantReparent(t *testing.T) {
	nodes := sampleForest()
	if !WouldCreateCycle(nodes, "eng", "sre") {
		t.Error("reparenting eng under its own descendant sre should be a cycle")
	}
	if !WouldCreateCycle(nodes, "eng", "eng") {
		t.Error("reparenting a node under itself should be a cycle")
	}
	if WouldCreateCycle(nodes, "sre", "platform") {
		t.Error("reparenting sre under its sibling platform should not be a cycle")
	}
}
