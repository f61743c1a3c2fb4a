/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ac

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

/*
Watch reloads credentials and policies whenever one of the given files
changes. Watching stops once the context is done. A failed reload keeps
the previous state.
*/
func (a *AccessControlLists) Watch(ctx context.Context, credentialFile, policyFile string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	credentialFile = filepath.Clean(credentialFile)
	policyFile = filepath.Clean(policyFile)

	// Watch the directories since editors often replace files

	dirs := map[string]bool{
		filepath.Dir(credentialFile): true,
		filepath.Dir(policyFile):     true,
	}

	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return err
		}
	}

	go func() {
		defer fsw.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-fsw.Events:
				if !ok {
					return
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if name := filepath.Clean(event.Name); name != credentialFile && name != policyFile {
					continue
				}

				if err := a.Load(credentialFile, policyFile); err != nil {
					logrus.WithField("error", err).Error("Could not reload access control files")
				} else {
					LogAccess("Reloaded access control files after change of ", event.Name)
				}

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}

				logrus.WithField("error", err).Warn("Access control file watcher error")
			}
		}
	}()

	return nil
}
