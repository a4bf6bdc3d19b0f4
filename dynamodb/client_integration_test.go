//go:build integration

package dynamodb_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/slackmgr/sqsrecovery/dynamodb"
	"github.com/slackmgr/sqsrecovery/errorhandler"
)

var client *dynamodb.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	region := os.Getenv("AWS_REGION")
	tableName := os.Getenv("DYNAMODB_TABLE_NAME")

	if region == "" || tableName == "" {
		fmt.Fprintln(os.Stderr, "AWS_REGION and DYNAMODB_TABLE_NAME environment variables must be set for integration tests")
		os.Exit(1)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c := dynamodb.New(&awsCfg, tableName, dynamodb.WithTimeToLive(time.Hour))

	if err := c.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := c.DropAllData(ctx); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("failed to delete all items: %w", err))
		os.Exit(1)
	}

	if err := c.Init(ctx, false); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client = c

	os.Exit(m.Run())
}

func TestRecordAndFindUnrecoverable(t *testing.T) {
	ctx := t.Context()
	now := time.Now().UTC()

	records := []*errorhandler.UnrecoverableRecord{
		{MessageID: "it-msg-1", Source: "it-orders", ReceiveCount: 1, Reason: "rejected", Timestamp: now},
		{MessageID: "it-msg-2", Source: "it-orders", ReceiveCount: 2, Reason: "rejected", Timestamp: now.Add(time.Millisecond)},
		{MessageID: "it-msg-3", Source: "it-payments", ReceiveCount: 5, Reason: "rejected", Timestamp: now},
	}

	for _, r := range records {
		if err := client.RecordUnrecoverable(ctx, r); err != nil {
			t.Fatalf("RecordUnrecoverable failed: %v", err)
		}
	}

	found, err := client.FindUnrecoverable(ctx, "it-orders")
	if err != nil {
		t.Fatalf("FindUnrecoverable failed: %v", err)
	}

	if len(found) != 2 || found[0].MessageID != "it-msg-1" || found[1].MessageID != "it-msg-2" {
		t.Errorf("unexpected records %+v", found)
	}

	byID, err := client.FindUnrecoverableByMessageID(ctx, "it-msg-3")
	if err != nil {
		t.Fatalf("FindUnrecoverableByMessageID failed: %v", err)
	}

	if len(byID) != 1 || byID[0].ReceiveCount != 5 {
		t.Errorf("unexpected records %+v", byID)
	}

	if err := client.DeleteUnrecoverable(ctx, records[0]); err != nil {
		t.Fatalf("DeleteUnrecoverable failed: %v", err)
	}

	found, err = client.FindUnrecoverable(ctx, "it-orders")
	if err != nil {
		t.Fatalf("FindUnrecoverable failed: %v", err)
	}

	if len(found) != 1 || found[0].MessageID != "it-msg-2" {
		t.Errorf("unexpected records after delete %+v", found)
	}
}
