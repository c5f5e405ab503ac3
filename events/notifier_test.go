// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package events_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/relationdata/contract"
	"github.com/juju/relationdata/core/life"
	"github.com/juju/relationdata/core/relation"
	coresecrets "github.com/juju/relationdata/core/secrets"
	"github.com/juju/relationdata/events"
	"github.com/juju/relationdata/exchange"
	"github.com/juju/relationdata/secrets/provider/memory"
	relationtesting "github.com/juju/relationdata/testing"
)

type NotifierSuite struct {
	jujutesting.IsolationSuite

	hub       *pubsub.SimpleHub
	exchanger *stubExchanger
}

var _ = gc.Suite(&NotifierSuite{})

func (s *NotifierSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.hub = pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("test.hub"),
	})
	s.exchanger = &stubExchanger{
		role:  relation.Provider,
		phase: relation.Ready,
	}
}

func (s *NotifierSuite) notifier(c *gc.C) *events.Notifier {
	n, err := events.NewNotifier(events.NotifierConfig{
		Hub:       s.hub,
		Exchanger: s.exchanger,
		Logger:    loggo.GetLogger("test.notifier"),
	})
	c.Assert(err, jc.ErrorIsNil)
	return n
}

func (s *NotifierSuite) subscribe(c *gc.C, topic string) <-chan interface{} {
	ch := make(chan interface{}, 10)
	unsub := s.hub.Subscribe(topic, func(_ string, data interface{}) {
		ch <- data
	})
	s.AddCleanup(func(*gc.C) { unsub() })
	return ch
}

func (s *NotifierSuite) waitEvent(c *gc.C, ch <-chan interface{}) interface{} {
	select {
	case data := <-ch:
		return data
	case <-time.After(relationtesting.LongWait):
		c.Fatalf("no event published")
	}
	return nil
}

func (s *NotifierSuite) assertNothingPublished(c *gc.C, chans ...<-chan interface{}) {
	for _, ch := range chans {
		select {
		case data := <-ch:
			c.Fatalf("unexpected event %#v", data)
		case <-time.After(relationtesting.ShortWait):
		}
	}
}

func (s *NotifierSuite) TestConfigValidate(c *gc.C) {
	_, err := events.NewNotifier(events.NotifierConfig{})
	c.Check(err, gc.ErrorMatches, "nil Hub not valid")
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = events.NewNotifier(events.NotifierConfig{Hub: s.hub})
	c.Check(err, gc.ErrorMatches, "nil Exchanger not valid")

	_, err = events.NewNotifier(events.NotifierConfig{
		Hub:       s.hub,
		Exchanger: s.exchanger,
	})
	c.Check(err, gc.ErrorMatches, "nil Logger not valid")
}

func (s *NotifierSuite) TestProviderPublishesRequested(c *gc.C) {
	s.exchanger.diff = exchange.Diff{Added: set.NewStrings("bucket")}
	requested := s.subscribe(c, events.RequestedTopic)

	err := s.notifier(c).HandleRelationChanged(context.Background(), 7)
	c.Assert(err, jc.ErrorIsNil)

	change, ok := s.waitEvent(c, requested).(events.RequestedChange)
	c.Assert(ok, jc.IsTrue)
	c.Check(change.RelationID, gc.Equals, 7)
	c.Check(change.Diff.Added.SortedValues(), jc.DeepEquals, []string{"bucket"})
	s.exchanger.CheckCallNames(c, "ComputeDiff")
}

func (s *NotifierSuite) TestEmptyDiffPublishesNothing(c *gc.C) {
	requested := s.subscribe(c, events.RequestedTopic)
	changed := s.subscribe(c, events.ChangedTopic)

	err := s.notifier(c).HandleRelationChanged(context.Background(), 7)
	c.Assert(err, jc.ErrorIsNil)

	s.assertNothingPublished(c, requested, changed)
}

func (s *NotifierSuite) TestRequirerPublishesConnectionData(c *gc.C) {
	s.exchanger.role = relation.Requirer
	s.exchanger.diff = exchange.Diff{Changed: set.NewStrings("secret-secret-key")}
	s.exchanger.data = map[string]string{"bucket": "b1", "secret-key": "k1"}
	changed := s.subscribe(c, events.ChangedTopic)

	err := s.notifier(c).HandleRelationChanged(context.Background(), 7)
	c.Assert(err, jc.ErrorIsNil)

	change, ok := s.waitEvent(c, changed).(events.ConnectionChange)
	c.Assert(ok, jc.IsTrue)
	c.Check(change.RelationID, gc.Equals, 7)
	c.Check(change.Data, jc.DeepEquals, map[string]string{
		"bucket":     "b1",
		"secret-key": "k1",
	})
	s.exchanger.CheckCallNames(c, "ComputeDiff", "Phase", "Fetch")
}

func (s *NotifierSuite) TestRequirerNotReadyPublishesNothing(c *gc.C) {
	s.exchanger.role = relation.Requirer
	s.exchanger.phase = relation.InitiatorPublished
	s.exchanger.diff = exchange.Diff{Added: set.NewStrings("bucket")}
	changed := s.subscribe(c, events.ChangedTopic)

	err := s.notifier(c).HandleRelationChanged(context.Background(), 7)
	c.Assert(err, jc.ErrorIsNil)

	s.assertNothingPublished(c, changed)
	s.exchanger.CheckCallNames(c, "ComputeDiff", "Phase")
}

func (s *NotifierSuite) TestSecretChangedRefreshesThenPublishes(c *gc.C) {
	s.exchanger.role = relation.Requirer
	s.exchanger.data = map[string]string{"bucket": "b1", "secret-key": "k2"}
	changed := s.subscribe(c, events.ChangedTopic)

	err := s.notifier(c).HandleSecretChanged(context.Background(), 7, coresecrets.SecretGroup("secret-key"))
	c.Assert(err, jc.ErrorIsNil)

	change, ok := s.waitEvent(c, changed).(events.ConnectionChange)
	c.Assert(ok, jc.IsTrue)
	c.Check(change.Data["secret-key"], gc.Equals, "k2")
	s.exchanger.CheckCalls(c, []jujutesting.StubCall{
		{FuncName: "RefreshSecret", Args: []interface{}{7, coresecrets.SecretGroup("secret-key")}},
		{FuncName: "Phase", Args: []interface{}{7}},
		{FuncName: "Fetch", Args: []interface{}{7, []string(nil)}},
	})
}

func (s *NotifierSuite) TestSecretChangedProviderOnlyRefreshes(c *gc.C) {
	changed := s.subscribe(c, events.ChangedTopic)

	err := s.notifier(c).HandleSecretChanged(context.Background(), 7, coresecrets.GroupUser)
	c.Assert(err, jc.ErrorIsNil)

	s.assertNothingPublished(c, changed)
	s.exchanger.CheckCallNames(c, "RefreshSecret")
}

func (s *NotifierSuite) TestRelationBrokenPublishesGone(c *gc.C) {
	gone := s.subscribe(c, events.GoneTopic)

	err := s.notifier(c).HandleRelationBroken(context.Background(), 7)
	c.Assert(err, jc.ErrorIsNil)

	change, ok := s.waitEvent(c, gone).(events.GoneChange)
	c.Assert(ok, jc.IsTrue)
	c.Check(change.RelationID, gc.Equals, 7)
}

func (s *NotifierSuite) TestDiffErrorSurfaces(c *gc.C) {
	s.exchanger.SetErrors(errors.New("splat"))

	err := s.notifier(c).HandleRelationChanged(context.Background(), 7)
	c.Assert(err, gc.ErrorMatches, "splat")
}

func (s *NotifierSuite) TestResolvedSecretsReachSubscribers(c *gc.C) {
	// Full pipeline: the provider routes a sensitive field through a
	// secret; the requirer's notifier resolves it and publishes the
	// plain values on the hub.
	clk := testclock.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	backing := memory.NewBacking(clk)
	channel := relationtesting.NewChannel()
	channel.AddRelation(relation.Relation{
		ID:                7,
		Name:              "object-storage",
		LocalApplication:  "minio",
		RemoteApplication: "wordpress",
		Life:              life.Alive,
	})
	gcs, err := contract.ForBackend("gcs")
	c.Assert(err, jc.ErrorIsNil)

	newEngine := func(app, unit string, role relation.Role) *exchange.Engine {
		e, err := exchange.NewEngine(exchange.Config{
			Channel:    channel,
			Store:      backing.ClientFor(app),
			Contract:   gcs,
			Role:       role,
			LocalUnit:  unit,
			Leadership: relationtesting.NewLeadership(true),
		})
		c.Assert(err, jc.ErrorIsNil)
		return e
	}
	provider := newEngine("minio", "minio/0", relation.Provider)
	requirer := newEngine("wordpress", "wordpress/0", relation.Requirer)

	ctx := context.Background()
	c.Assert(provider.PublishSchemaVersion(ctx, 7), jc.ErrorIsNil)
	c.Assert(requirer.RequestSecrets(ctx, 7), jc.ErrorIsNil)
	c.Assert(provider.Update(ctx, 7, map[string]string{
		"bucket":     "b1",
		"secret-key": "k1",
	}), jc.ErrorIsNil)

	notifier, err := events.NewNotifier(events.NotifierConfig{
		Hub:       s.hub,
		Exchanger: requirer,
		Logger:    loggo.GetLogger("test.notifier"),
	})
	c.Assert(err, jc.ErrorIsNil)
	changed := s.subscribe(c, events.ChangedTopic)

	c.Assert(notifier.HandleRelationChanged(ctx, 7), jc.ErrorIsNil)
	change, ok := s.waitEvent(c, changed).(events.ConnectionChange)
	c.Assert(ok, jc.IsTrue)
	c.Check(change.Data, jc.DeepEquals, map[string]string{
		"bucket":     "b1",
		"secret-key": "k1",
	})

	// The same state again is not an event.
	c.Assert(notifier.HandleRelationChanged(ctx, 7), jc.ErrorIsNil)
	s.assertNothingPublished(c, changed)
}

type stubExchanger struct {
	jujutesting.Stub

	role  relation.Role
	phase relation.Phase
	diff  exchange.Diff
	data  map[string]string
}

func (s *stubExchanger) Role() relation.Role {
	return s.role
}

func (s *stubExchanger) Phase(_ context.Context, relationID int) (relation.Phase, error) {
	s.MethodCall(s, "Phase", relationID)
	return s.phase, s.NextErr()
}

func (s *stubExchanger) Fetch(_ context.Context, relationID int, fieldNames ...string) (map[string]string, error) {
	s.MethodCall(s, "Fetch", relationID, fieldNames)
	return s.data, s.NextErr()
}

func (s *stubExchanger) ComputeDiff(_ context.Context, relationID int) (exchange.Diff, error) {
	s.MethodCall(s, "ComputeDiff", relationID)
	return s.diff, s.NextErr()
}

func (s *stubExchanger) RefreshSecret(_ context.Context, relationID int, group coresecrets.SecretGroup) (map[string]string, error) {
	s.MethodCall(s, "RefreshSecret", relationID, group)
	return s.data, s.NextErr()
}
