package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/desipipe/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on top of a single queue database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the queue database at dbPath. Use
// ":memory:" for an in-memory database in tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func unixFloat(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

func fromUnixFloat(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixFloat(*t)
}

// --- upsert / read ---

func (s *SQLiteStore) Upsert(ctx context.Context, task *model.Task) (model.TaskState, bool, error) {
	s.logger.Debug("sql", "op", "upsert", "table", "tasks", "id", task.ID)

	var priorState string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM tasks WHERE id = ?`, task.ID).Scan(&priorState)
	existed := err == nil
	if err != nil && err != sql.ErrNoRows {
		return "", false, err
	}

	if existed {
		prior := model.TaskState(priorState)
		if !prior.CanTransitionTo(task.State) && prior != task.State {
			return prior, true, &model.InvalidTransitionError{ID: task.ID, From: prior, To: task.State}
		}
	}

	depsJSON, err := json.Marshal(task.Deps)
	if err != nil {
		return "", existed, fmt.Errorf("marshal deps: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, app_name, app_hash, kind, args_blob, kwargs_blob, deps, state,
		 result_blob, errno, out, err, jobid, tm_config, t_created, t_started, t_finished, t_heartbeat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state=excluded.state, result_blob=excluded.result_blob, errno=excluded.errno,
		   out=excluded.out, err=excluded.err, jobid=excluded.jobid,
		   t_started=excluded.t_started, t_finished=excluded.t_finished, t_heartbeat=excluded.t_heartbeat`,
		task.ID, task.AppName, task.AppHash, string(task.Kind), task.ArgsBlob, task.KwargsBlob,
		string(depsJSON), string(task.State), task.ResultBlob, task.Errno, task.Out, task.Err,
		task.JobID, task.TMConfigBlob, unixFloat(task.CreatedAt),
		nullableTime(task.StartedAt), nullableTime(task.FinishedAt), nullableTime(task.Heartbeat),
	)
	if err != nil {
		return "", existed, err
	}

	if existed {
		return model.TaskState(priorState), true, nil
	}
	return "", false, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "id", id)
	return s.scanTask(s.db.QueryRowContext(ctx, taskSelectCols+` FROM tasks WHERE id = ?`, id))
}

const taskSelectCols = `SELECT id, app_name, app_hash, kind, args_blob, kwargs_blob, deps, state,
	result_blob, errno, out, err, jobid, tm_config, t_created, t_started, t_finished, t_heartbeat`

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanTask(row scanner) (*model.Task, error) {
	var task model.Task
	var kind, state, depsJSON string
	var tCreated float64
	var tStarted, tFinished, tHeartbeat *float64

	err := row.Scan(&task.ID, &task.AppName, &task.AppHash, &kind, &task.ArgsBlob, &task.KwargsBlob,
		&depsJSON, &state, &task.ResultBlob, &task.Errno, &task.Out, &task.Err, &task.JobID,
		&task.TMConfigBlob, &tCreated, &tStarted, &tFinished, &tHeartbeat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.Kind = model.AppKind(kind)
	task.State = model.TaskState(state)
	if err := json.Unmarshal([]byte(depsJSON), &task.Deps); err != nil {
		return nil, fmt.Errorf("unmarshal deps: %w", err)
	}
	task.CreatedAt = fromUnixFloat(tCreated)
	if tStarted != nil {
		t := fromUnixFloat(*tStarted)
		task.StartedAt = &t
	}
	if tFinished != nil {
		t := fromUnixFloat(*tFinished)
		task.FinishedAt = &t
	}
	if tHeartbeat != nil {
		t := fromUnixFloat(*tHeartbeat)
		task.Heartbeat = &t
	}
	return &task, nil
}

func (s *SQLiteStore) scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	filter.Clamp()
	s.logger.Debug("sql", "op", "list", "table", "tasks", "state", filter.State, "app_name", filter.AppName)

	var where []string
	var args []any
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.AppName != "" {
		where = append(where, "app_name = ?")
		args = append(args, filter.AppName)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		taskSelectCols+` FROM tasks`+whereSQL+` ORDER BY t_created, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// --- claim / heartbeat / flush / finish ---

func (s *SQLiteStore) Claim(ctx context.Context, workerJobID string, filter ClaimFilter) (*model.Task, error) {
	s.logger.Debug("sql", "op", "claim", "jobid", workerJobID, "app_name", filter.AppName)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var where []string
	var args []any
	where = append(where, "state = 'PENDING'")
	if filter.AppName != "" {
		where = append(where, "app_name = ?")
		args = append(args, filter.AppName)
	}
	if filter.TMConfigHash != "" {
		where = append(where, "tm_config_hash = ?")
		args = append(args, filter.TMConfigHash)
	}

	rows, err := tx.QueryContext(ctx,
		taskSelectCols+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY t_created, id LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	var candidate *model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidate = t
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if candidate == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET state='RUNNING', jobid=?, t_started=?, t_heartbeat=? WHERE id=? AND state='PENDING'`,
		workerJobID, unixFloat(now), unixFloat(now), candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// lost the race to another claimant; caller retries next tick
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	candidate.State = model.TaskRunning
	candidate.JobID = workerJobID
	candidate.StartedAt = &now
	candidate.Heartbeat = &now
	return candidate, nil
}

func (s *SQLiteStore) Heartbeat(ctx context.Context, id, workerJobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET t_heartbeat=? WHERE id=? AND state='RUNNING' AND jobid=?`,
		unixFloat(time.Now().UTC()), id, workerJobID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("heartbeat: task %s not running under jobid %s", id, workerJobID)
	}
	return nil
}

func (s *SQLiteStore) FlushOutput(ctx context.Context, id, workerJobID string, outAppend, errAppend string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET out = out || ?, err = err || ? WHERE id=? AND state='RUNNING' AND jobid=?`,
		outAppend, errAppend, id, workerJobID)
	return err
}

func (s *SQLiteStore) Finish(ctx context.Context, id, workerJobID string, resultBlob []byte, errno int, out, errStr string) error {
	state := model.TaskSucceeded
	if errno != 0 {
		state = model.TaskFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET state=?, result_blob=?, errno=?, out=out || ?, err=err || ?, t_finished=?
		 WHERE id=? AND state='RUNNING' AND jobid=?`,
		string(state), resultBlob, errno, out, errStr, unixFloat(time.Now().UTC()), id, workerJobID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("finish: task %s not running under jobid %s", id, workerJobID)
	}
	if state == model.TaskFailed {
		if _, err := s.CascadeFailure(ctx, id); err != nil {
			return fmt.Errorf("cascade failure from %s: %w", id, err)
		}
	}
	return nil
}

// --- graph maintenance ---

func (s *SQLiteStore) directDependents(ctx context.Context, tx *sql.Tx, id string) ([]*model.Task, error) {
	rows, err := tx.QueryContext(ctx, taskSelectCols+` FROM tasks WHERE deps LIKE ?`, "%\""+id+"\"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		for _, d := range t.Deps {
			if d == id {
				out = append(out, t)
				break
			}
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CascadeFailure(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	failed, err := s.cascadeFailureTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *SQLiteStore) cascadeFailureTx(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	dependents, err := s.directDependents(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, dep := range dependents {
		if dep.State.IsTerminal() || dep.State == model.TaskRunning {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET state='FAILED', errno=?, err=? WHERE id=? AND state NOT IN ('SUCCEEDED','FAILED','KILLED','RUNNING')`,
			model.ErrnoDependencyFailed, (&model.DependencyFailedError{TaskID: dep.ID, DepID: id}).Error(), dep.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		failed = append(failed, dep.ID)
		transitive, err := s.cascadeFailureTx(ctx, tx, dep.ID)
		if err != nil {
			return nil, err
		}
		failed = append(failed, transitive...)
	}
	return failed, nil
}

func (s *SQLiteStore) ScanReady(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, taskSelectCols+` FROM tasks WHERE state='WAITING'`)
	if err != nil {
		return nil, err
	}
	var waiting []*model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		waiting = append(waiting, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var promoted []string
	for _, t := range waiting {
		allSucceeded := true
		anyFailed := false
		for _, depID := range t.Deps {
			dep, err := s.scanTask(tx.QueryRowContext(ctx, taskSelectCols+` FROM tasks WHERE id=?`, depID))
			if err != nil {
				return nil, err
			}
			if dep == nil {
				return nil, &model.Error{Code: model.ErrQueueCorruption, Message: fmt.Sprintf("task %s references missing dependency %s", t.ID, depID)}
			}
			switch dep.State {
			case model.TaskSucceeded:
			case model.TaskFailed, model.TaskKilled:
				anyFailed = true
				allSucceeded = false
			default:
				allSucceeded = false
			}
		}

		if anyFailed {
			res, err := tx.ExecContext(ctx, `UPDATE tasks SET state='FAILED', errno=? WHERE id=? AND state='WAITING'`,
				model.ErrnoDependencyFailed, t.ID)
			if err != nil {
				return nil, err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if _, err := s.cascadeFailureTx(ctx, tx, t.ID); err != nil {
					return nil, err
				}
			}
			continue
		}
		if allSucceeded {
			res, err := tx.ExecContext(ctx, `UPDATE tasks SET state='PENDING' WHERE id=? AND state='WAITING'`, t.ID)
			if err != nil {
				return nil, err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				promoted = append(promoted, t.ID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return promoted, nil
}

func (s *SQLiteStore) SweepStale(ctx context.Context, timeout float64) ([]string, error) {
	cutoff := unixFloat(time.Now().UTC()) - timeout

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tasks WHERE state='RUNNING' AND (t_heartbeat IS NULL OR t_heartbeat < ?)`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET state='UNKNOWN', errno=? WHERE state='RUNNING' AND id IN (`+strings.Join(placeholders, ",")+`)`,
		append([]any{model.ErrnoLost}, args...)...)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("sweep_stale", "count", len(ids))
	return ids, nil
}

func (s *SQLiteStore) Retry(ctx context.Context, filter RetryFilter) ([]string, error) {
	if filter.State == model.TaskRunning {
		s.logger.Warn("retry on RUNNING state is a no-op", "state", filter.State)
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE state=?`, string(filter.State))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET state='PENDING', result_blob=NULL, errno=0, out='', err='', jobid='',
		 t_started=NULL, t_finished=NULL, t_heartbeat=NULL WHERE state=?`, string(filter.State))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) Kill(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE state NOT IN ('SUCCEEDED','FAILED','KILLED')`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET state='KILLED' WHERE state NOT IN ('SUCCEEDED','FAILED','KILLED')`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.NewNotFoundError("task", id)
	}
	return nil
}

// --- queue state / summary ---

func (s *SQLiteStore) State(ctx context.Context) (model.QueueState, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='state'`).Scan(&v)
	if err == sql.ErrNoRows {
		return model.QueueActive, nil
	}
	if err != nil {
		return "", err
	}
	return model.QueueState(v), nil
}

func (s *SQLiteStore) SetState(ctx context.Context, st model.QueueState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('state', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		string(st))
	return err
}

func (s *SQLiteStore) Summary(ctx context.Context) (model.QueueSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM tasks GROUP BY state`)
	if err != nil {
		return model.QueueSummary{}, err
	}
	defer rows.Close()

	var sum model.QueueSummary
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return model.QueueSummary{}, err
		}
		sum.Total += count
		switch model.TaskState(state) {
		case model.TaskWaiting:
			sum.Waiting = count
		case model.TaskPending:
			sum.Pending = count
		case model.TaskRunning:
			sum.Running = count
		case model.TaskSucceeded:
			sum.Succeeded = count
		case model.TaskFailed:
			sum.Failed = count
		case model.TaskKilled:
			sum.Killed = count
		case model.TaskUnknown:
			sum.Unknown = count
		}
	}
	return sum, rows.Err()
}
