package reconciler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/nao1215/edgegate/internal/routestore"
)

// Source はレジストリから現在のメンバーシップを取得する操作。
type Source interface {
	// ListServices は現在レジストリに登録されているサービス識別子を返す。
	ListServices(ctx context.Context) ([]string, error)
}

// Store はルート定義の設置先。削除は対象が無くても成功すること。
type Store interface {
	Delete(ctx context.Context, routeID string) error
	Insert(ctx context.Context, def routestore.RouteDefinition) error
}

// RefreshPublisher はルート変更をゲートウェイ本体へ知らせる発行口。
// 戻り値は消費されない（投げっぱなし）。
type RefreshPublisher interface {
	PublishRefresh()
}

// Config はリコンサイラの構成。
type Config struct {
	// Source はレジストリスナップショット源。
	Source Source
	// Store はルート定義ストア。
	Store Store
	// Publisher はルート変更の通知先。
	Publisher RefreshPublisher
	// Exclusions はルート化しないサービスの除外ポリシー。
	Exclusions *ExclusionPolicy
	// Logger は診断ログの出力先。
	Logger hclog.Logger
	// InitialDelay は起動から最初のリコンサイルまでの待ち時間。
	// 依存コンポーネントの配線完了を待つための猶予で、0以下なら既定値を使う。
	InitialDelay time.Duration
	// Interval は変化通知を取りこぼした場合の安全網となる定期実行間隔。
	// 0なら定期実行を無効にする。
	Interval time.Duration
}

// defaultInitialDelay は初回リコンサイルまでの既定の猶予。
const defaultInitialDelay = 2 * time.Second

// Reconciler はレジストリメンバーシップとルート定義を同期し続ける。
//
// 登録済みルート集合の書き込みはリコンサイルパスのみが行い、
// パスは単一のループ上で直列に実行されるため重なり合わない。
// パス実行中に届いた変化通知はバッファ1のチャネルで1回に合流する。
type Reconciler struct {
	source     Source
	store      Store
	publisher  RefreshPublisher
	exclusions *ExclusionPolicy
	logger     hclog.Logger

	initialDelay time.Duration
	interval     time.Duration

	// mu はregisteredを保護する。差分計算中の読み取りと
	// パス適用中の更新が競合しないようにする。
	mu sync.Mutex
	// registered は現在ルートを設置済みのサービス識別子の集合。
	registered map[string]struct{}

	// initialized は初回リコンサイル完了後にtrueになる。
	// falseの間に届いた変化通知は破棄される。
	initialized atomic.Bool

	// trigger は変化通知の受け口。バッファ1で通知を合流させる。
	trigger chan struct{}
}

// New は新しいリコンサイラを生成する。
func New(cfg Config) *Reconciler {
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = defaultInitialDelay
	}
	exclusions := cfg.Exclusions
	if exclusions == nil {
		exclusions = NewExclusionPolicy(nil)
	}

	return &Reconciler{
		source:       cfg.Source,
		store:        cfg.Store,
		publisher:    cfg.Publisher,
		exclusions:   exclusions,
		logger:       cfg.Logger.Named("reconciler"),
		initialDelay: delay,
		interval:     cfg.Interval,
		registered:   make(map[string]struct{}),
		trigger:      make(chan struct{}, 1),
	}
}

// Notify は変化通知の送信先チャネルを返す。
// レジストリの監視ループがここへシグナルを送る。
func (r *Reconciler) Notify() chan<- struct{} {
	return r.trigger
}

// Initialized は初回リコンサイルが完了しているかどうかを返す。
func (r *Reconciler) Initialized() bool {
	return r.initialized.Load()
}

// Registered は登録済みルート集合の現在のスナップショットをソートして返す。
// パス実行中は一時的に古い値が見えることがある。
func (r *Reconciler) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	services := make([]string, 0, len(r.registered))
	for svc := range r.registered {
		services = append(services, svc)
	}
	sort.Strings(services)
	return services
}

// Run はリコンサイルループを実行する。ctxが取り消されるまで戻らない。
//
// 起動直後はInitialDelayだけ待ってから初回リコンサイルを行う。
// 初回が失敗しても致命としては扱わず、以後の変化通知または
// 定期実行のタイミングで再度初期化を試みる。
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("リコンサイルループを開始します",
		"initial_delay", r.initialDelay, "interval", r.interval)

	initTimer := time.NewTimer(r.initialDelay)
	defer initTimer.Stop()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// attempted は初回リコンサイルの試行が一度でも行われたかどうか。
	// 猶予中に届いた通知は破棄するが、初回が失敗した後の通知は
	// 初期化のやり直しとして扱う。
	attempted := false

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("リコンサイルループを終了します")
			return
		case <-initTimer.C:
			attempted = true
			r.initialize(ctx)
		case <-r.trigger:
			if !r.initialized.Load() {
				if !attempted {
					// 初回試行前の通知は後回しにせず破棄する
					r.logger.Debug("初期化前の変化通知を破棄しました")
					continue
				}
				r.initialize(ctx)
				continue
			}
			r.reconcileIfChanged(ctx)
		case <-tick:
			if !r.initialized.Load() {
				r.initialize(ctx)
				continue
			}
			r.reconcileIfChanged(ctx)
		}
	}
}

// initialize は初回リコンサイルを実行し、成功したら初期化完了にする。
func (r *Reconciler) initialize(ctx context.Context) {
	if r.initialized.Load() {
		return
	}

	current, err := r.currentMembership(ctx)
	if err != nil {
		r.logger.Error("初回リコンサイルに失敗しました。次回の定期実行で再試行します", "error", err)
		return
	}

	r.reconcile(ctx, current)
	r.initialized.Store(true)
	r.logger.Info("初回リコンサイルが完了しました", "routes", r.Registered())
}

// reconcileIfChanged はメンバーシップが登録済み集合と異なる場合のみ
// リコンサイルパスを実行する。同一なら何もしない（無駄な更新を避ける）。
func (r *Reconciler) reconcileIfChanged(ctx context.Context) {
	current, err := r.currentMembership(ctx)
	if err != nil {
		r.logger.Error("メンバーシップの取得に失敗しました", "error", err)
		return
	}

	if r.sameAsRegistered(current) {
		return
	}

	r.logger.Info("サービス構成の変化を検出しました",
		"current", sortedKeys(current), "registered", r.Registered())
	r.reconcile(ctx, current)
}

// currentMembership はレジストリの現在メンバーシップを取得し、
// 除外ポリシーに一致する識別子を取り除いて返す。
func (r *Reconciler) currentMembership(ctx context.Context) (map[string]struct{}, error) {
	services, err := r.source.ListServices(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(services))
	for _, svc := range services {
		if r.exclusions.Excluded(svc) {
			continue
		}
		current[svc] = struct{}{}
	}
	return current, nil
}

// sameAsRegistered はメンバーシップが登録済み集合と一致するかを返す。
func (r *Reconciler) sameAsRegistered(current map[string]struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(current) != len(r.registered) {
		return false
	}
	for svc := range current {
		if _, ok := r.registered[svc]; !ok {
			return false
		}
	}
	return true
}

// reconcile は1回のリコンサイルパスを実行する。
//
// まず登録済みだがメンバーシップに無いサービスのルートを削除し、
// 削除が落ち着いてから現メンバーシップ全件を削除してから挿入で
// 登録し直す。サービスごとの操作は独立したgoroutineで行い、
// 1件の失敗が他のサービスを妨げない。失敗したサービスは集合を
// 変更せず、次のパスで再試行される。最後に成否へ関係なく
// リフレッシュ通知を1回だけ発行する。
func (r *Reconciler) reconcile(ctx context.Context, current map[string]struct{}) {
	r.removeStaleRoutes(ctx, current)
	failures := r.addOrUpdateRoutes(ctx, current)

	if failures != nil {
		r.logger.Warn("一部のルート操作に失敗しました。次回のパスで再試行します",
			"error", failures)
	}

	r.publisher.PublishRefresh()
	r.logger.Info("リコンサイルパスが完了しました", "routes", r.Registered())
}

// removeStaleRoutes は登録済みだがメンバーシップに無いサービスの
// ルートを並行して削除する。
func (r *Reconciler) removeStaleRoutes(ctx context.Context, current map[string]struct{}) {
	r.mu.Lock()
	toRemove := make([]string, 0)
	for svc := range r.registered {
		if _, ok := current[svc]; !ok {
			toRemove = append(toRemove, svc)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, svc := range toRemove {
		wg.Add(1)
		go func(svc string) {
			defer wg.Done()

			routeID := routestore.RouteID(svc)
			if err := r.store.Delete(ctx, routeID); err != nil {
				// 集合に残したままにして次のパスで再試行する
				r.logger.Error("ルートの削除に失敗しました",
					"service", svc, "route_id", routeID, "error", err)
				return
			}

			r.mu.Lock()
			delete(r.registered, svc)
			r.mu.Unlock()
			r.logger.Info("登録解除されたサービスのルートを削除しました",
				"service", svc, "route_id", routeID)
		}(svc)
	}
	wg.Wait()
}

// addOrUpdateRoutes は現メンバーシップ全件のルートを並行して登録し直す。
// 戻り値はサービスごとの失敗をまとめたもので、呼び出し側がログに残す。
func (r *Reconciler) addOrUpdateRoutes(ctx context.Context, current map[string]struct{}) error {
	var wg sync.WaitGroup
	var failmu sync.Mutex
	var failures *multierror.Error

	for svc := range current {
		wg.Add(1)
		go func(svc string) {
			defer wg.Done()

			def := routestore.Derive(svc)
			// 既存ルートを消してから挿入する。対象が無い削除は成功扱いのため、
			// 登録済みサービスの再登録も新規サービスの登録も同じ手順になる。
			if err := r.store.Delete(ctx, def.RouteID); err != nil {
				r.logger.Error("既存ルートの削除に失敗しました",
					"service", svc, "route_id", def.RouteID, "error", err)
				failmu.Lock()
				failures = multierror.Append(failures, err)
				failmu.Unlock()
				return
			}
			if err := r.store.Insert(ctx, def); err != nil {
				r.logger.Error("ルートの登録に失敗しました",
					"service", svc, "route_id", def.RouteID, "error", err)
				failmu.Lock()
				failures = multierror.Append(failures, err)
				failmu.Unlock()
				return
			}

			r.mu.Lock()
			_, already := r.registered[svc]
			r.registered[svc] = struct{}{}
			r.mu.Unlock()

			if !already {
				r.logger.Info("ルートを登録しました",
					"service", svc, "route_id", def.RouteID,
					"path", def.PathPattern, "target", def.TargetURI)
			}
		}(svc)
	}
	wg.Wait()

	return failures.ErrorOrNil()
}

// sortedKeys は集合のキーをソートして返す。ログ出力用。
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
