package kafka

import "testing"

func TestTopicPartitionKeyForm(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 12}
	if tp.String() != "orders:12" {
		t.Fatalf("want orders:12, got %s", tp.String())
	}
	back, err := ParseTopicPartition("orders:12")
	if err != nil {
		t.Fatalf("ParseTopicPartition: %v", err)
	}
	if back != tp {
		t.Fatalf("round trip lost data: %+v", back)
	}
	for _, bad := range []string{"", "orders", "orders:", ":3", "orders:x"} {
		if _, err := ParseTopicPartition(bad); err == nil {
			t.Fatalf("%q must not parse", bad)
		}
	}
}

func TestAssignmentRoundTrip(t *testing.T) {
	a := Assignment{Leader: 5, Topic: "orders", Partition: 3}
	if a.String() != "5:orders:3" {
		t.Fatalf("want 5:orders:3, got %s", a.String())
	}
	back, err := ParseAssignment(a.String())
	if err != nil {
		t.Fatalf("ParseAssignment: %v", err)
	}
	if back != a {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if back.TopicPartition() != (TopicPartition{Topic: "orders", Partition: 3}) {
		t.Fatalf("wrong partition: %+v", back.TopicPartition())
	}
	for _, bad := range []string{"", "orders:3", "x:orders:3", "5:orders:x", "5:orders:3:9"} {
		if _, err := ParseAssignment(bad); err == nil {
			t.Fatalf("%q must not parse", bad)
		}
	}
}
