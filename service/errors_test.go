package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestFatal(t *testing.T) {
	err := MakeFatal(fmt.Errorf("Fatal error"))
	if !Fatal(err) {
		t.Fail()
	}
	if Fatal(fmt.Errorf("plain error")) {
		t.Fail()
	}
	if Temporary(err) {
		t.Fail()
	}
}

func TestRetriable(t *testing.T) {
	tries := 0
	err := Retriable(context.Background(), func() error {
		tries++
		if tries < 3 {
			return MakeTemporary(fmt.Errorf("try again"))
		}
		return nil
	}, time.Millisecond, 5)
	if err != nil {
		t.Errorf("expecting success after retries, found %v", err)
	}
	if tries != 3 {
		t.Errorf("expecting 3 tries, found %d", tries)
	}

	tries = 0
	err = Retriable(context.Background(), func() error {
		tries++
		return fmt.Errorf("permanent")
	}, time.Millisecond, 5)
	if err == nil || tries != 1 {
		t.Errorf("expecting immediate permanent failure, found %v after %d tries", err, tries)
	}
}
