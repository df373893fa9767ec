package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/archive"
	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
)

func paramID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func paramInt(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// Collections

func (s *Server) listRecords(c echo.Context) error {
	coll, err := schema.ParseCollection(c.Param("collection"))
	if err != nil {
		return err
	}
	records, err := s.app.GetAll(c.Request().Context(), coll)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) addRecord(c echo.Context) error {
	coll, err := schema.ParseCollection(c.Param("collection"))
	if err != nil {
		return err
	}
	rec, err := schema.NewRecord(coll)
	if err != nil {
		return err
	}
	if err := bind(c, rec); err != nil {
		return err
	}
	if _, err := s.app.Add(c.Request().Context(), rec); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) updateRecord(c echo.Context) error {
	coll, err := schema.ParseCollection(c.Param("collection"))
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	rec, err := schema.NewRecord(coll)
	if err != nil {
		return err
	}
	if err := bind(c, rec); err != nil {
		return err
	}
	rec.SetRecordID(id)
	if err := s.app.Update(c.Request().Context(), rec); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) removeRecord(c echo.Context) error {
	coll, err := schema.ParseCollection(c.Param("collection"))
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.app.Remove(c.Request().Context(), coll, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Catalog

func (s *Server) seed(c echo.Context) error {
	seeded, err := s.app.POS().SeedDefaults(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"seeded": seeded})
}

func (s *Server) addProduct(c echo.Context) error {
	var in pos.ProductInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := s.app.POS().AddProduct(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) updateProduct(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in pos.ProductInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := s.app.POS().UpdateProduct(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProduct(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.app.POS().DeleteProduct(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) addCategory(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cat, err := s.app.POS().AddCategory(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cat)
}

func (s *Server) renameCategory(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.app.POS().RenameCategory(c.Request().Context(), c.Param("name"), req.Name); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteCategory(c echo.Context) error {
	if err := s.app.POS().DeleteCategory(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Tables

func (s *Server) listTables(c echo.Context) error {
	tables, err := s.app.POS().Tables(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tables)
}

func (s *Server) resizeTables(c echo.Context) error {
	var req struct {
		Count int `json:"count"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	tables, err := s.app.POS().ResizeTables(c.Request().Context(), req.Count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tables)
}

func (s *Server) renameTable(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.app.POS().RenameTable(c.Request().Context(), id, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

type orderRequest struct {
	ProductID   int64    `json:"productId"`
	Quantity    int      `json:"quantity"`
	CustomPrice *float64 `json:"customPrice,omitempty"`
}

func (s *Server) addOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	req := orderRequest{Quantity: 1}
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.app.POS().AddOrder(c.Request().Context(), id, req.ProductID, req.Quantity, req.CustomPrice)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) updateOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	index, err := paramInt(c, "index")
	if err != nil {
		return err
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.app.POS().UpdateOrderQuantity(c.Request().Context(), id, index, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	index, err := paramInt(c, "index")
	if err != nil {
		return err
	}
	t, err := s.app.POS().DeleteOrder(c.Request().Context(), id, index)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

type tableRef struct {
	Table int64 `json:"table"`
}

func (s *Server) moveOrders(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req tableRef
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.app.POS().MoveOrders(c.Request().Context(), id, req.Table); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) mergeTables(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req tableRef
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.app.POS().MergeTables(c.Request().Context(), id, req.Table); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cancelMerge(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.app.POS().CancelMerge(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) startTimer(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.app.POS().StartTimer(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) stopTimer(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.app.POS().StopTimer(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) checkout(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Discount float64 `json:"discount"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	txn, err := s.app.POS().Checkout(c.Request().Context(), id, req.Discount)
	if err != nil {
		return err
	}
	loggerFrom(c).Info("table checked out", zap.Int64("table", id), zap.Int("invoice", txn.InvoiceNumber))
	return c.JSON(http.StatusCreated, txn)
}

// Register

type cashRequest struct {
	Amount float64 `json:"amount"`
	Notes  string  `json:"notes"`
}

func (s *Server) balance(c echo.Context) error {
	b, err := s.app.POS().Balance(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": b})
}

func (s *Server) deposit(c echo.Context) error {
	var req cashRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txn, err := s.app.POS().Deposit(c.Request().Context(), req.Amount, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, txn)
}

func (s *Server) withdraw(c echo.Context) error {
	var req cashRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	txn, err := s.app.POS().Withdraw(c.Request().Context(), req.Amount, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, txn)
}

// Settings

func (s *Server) getStoreSettings(c echo.Context) error {
	settings, err := s.app.POS().StoreSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) putStoreSettings(c echo.Context) error {
	var settings schema.StoreSettings
	if err := bind(c, &settings); err != nil {
		return err
	}
	if err := s.app.POS().SaveStoreSettings(c.Request().Context(), settings); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// Sync

func (s *Server) syncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.app.GetSyncStatus())
}

func (s *Server) syncNow(c echo.Context) error {
	if err := s.app.ForceSyncNow(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.app.GetSyncStatus())
}

func (s *Server) syncStart(c echo.Context) error {
	if err := s.app.StartSync(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.app.GetSyncStatus())
}

func (s *Server) syncStop(c echo.Context) error {
	s.app.StopSync()
	return c.JSON(http.StatusOK, s.app.GetSyncStatus())
}

type syncSettingsRequest struct {
	Enabled         *bool `json:"enabled,omitempty"`
	AutoSync        *bool `json:"autoSync,omitempty"`
	IntervalSeconds int   `json:"intervalSeconds,omitempty"`
}

func (s *Server) syncSettings(c echo.Context) error {
	var req syncSettingsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.IntervalSeconds < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "intervalSeconds must be positive")
	}
	ctx := c.Request().Context()
	if req.Enabled != nil {
		if err := s.app.SetSyncEnabled(ctx, *req.Enabled); err != nil {
			return err
		}
	}
	if req.AutoSync != nil {
		if err := s.app.SetAutoSyncEnabled(ctx, *req.AutoSync); err != nil {
			return err
		}
	}
	if req.IntervalSeconds > 0 {
		s.app.Coordinator().SetInterval(time.Duration(req.IntervalSeconds) * time.Second)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"enabled":         s.app.SyncEnabled(),
		"autoSync":        s.app.AutoSyncEnabled(),
		"intervalSeconds": int(s.app.Coordinator().Interval() / time.Second),
	})
}

// Snapshots

func (s *Server) exportSnapshot(c echo.Context) error {
	snap, err := s.app.ExportSnapshot(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) importSnapshot(c echo.Context) error {
	var snap schema.Snapshot
	if err := bind(c, &snap); err != nil {
		return err
	}
	if err := s.app.ImportSnapshot(c.Request().Context(), &snap); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// queryRange reads from and to (RFC 3339). The range defaults to the last
// 24 hours.
func queryRange(c echo.Context) (from, to time.Time, err error) {
	to = time.Now()
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	from = to.Add(-24 * time.Hour)
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	return from, to, nil
}

func (s *Server) report(c echo.Context) error {
	from, to, err := queryRange(c)
	if err != nil {
		return err
	}
	r, err := s.app.POS().Report(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) ledger(c echo.Context) error {
	from, to, err := queryRange(c)
	if err != nil {
		return err
	}
	txns, err := s.app.POS().Ledger(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	if c.QueryParam("format") != "csv" {
		return c.JSON(http.StatusOK, txns)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="ledger.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return archive.WriteLedgerCSV(c.Response(), txns)
}
